package loom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom"
)

func TestCurrent_NilWithoutContext(t *testing.T) {
	assert.Nil(t, loom.Current(context.Background()))
}

func TestWithContext_CarriesExecutionContext(t *testing.T) {
	ec := loom.NewExecutionContext("main")
	ctx := loom.WithContext(context.Background(), ec)

	assert.Same(t, ec, loom.Current(ctx))
}

func TestWithContext_InnerShadowsOuter(t *testing.T) {
	outer := loom.NewExecutionContext("outer")
	inner := outer.NewChild("inner")

	ctx := loom.WithContext(context.Background(), outer)
	innerCtx := loom.WithContext(ctx, inner)

	// The derived context resolves to the child; the original still
	// resolves to the parent. Popping is just letting innerCtx go.
	assert.Same(t, inner, loom.Current(innerCtx))
	assert.Same(t, outer, loom.Current(ctx))
}

func TestNewChild_IsFullyIsolated(t *testing.T) {
	parent := loom.NewExecutionContext("parent")
	parent.Store().Set("secret", "parent-only")
	parent.Transcript().Info("parent event")

	child := parent.NewChild("child")

	require.NotSame(t, parent.Store(), child.Store())
	require.NotSame(t, parent.Transcript(), child.Transcript())
	assert.False(t, child.Store().Contains("secret"))
	assert.Equal(t, 0, child.Transcript().Len())
	assert.Same(t, parent, child.Parent())
	assert.NotEqual(t, parent.ID(), child.ID())
}

func TestCurrent_PerGoroutineResolution(t *testing.T) {
	root := loom.NewExecutionContext("root")
	ctx := loom.WithContext(context.Background(), root)

	a := root.NewChild("a")
	b := root.NewChild("b")

	results := make(chan *loom.ExecutionContext, 2)
	for _, ec := range []*loom.ExecutionContext{a, b} {
		go func(ec *loom.ExecutionContext) {
			results <- loom.Current(loom.WithContext(ctx, ec))
		}(ec)
	}

	got := map[*loom.ExecutionContext]bool{<-results: true, <-results: true}
	assert.True(t, got[a])
	assert.True(t, got[b])
	assert.Same(t, root, loom.Current(ctx))
}
