package loom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom"
)

// -----------------------------------------------------------------------------
// Store Tests
// -----------------------------------------------------------------------------

func TestStore_GetInsertsDefaultOnce(t *testing.T) {
	s := loom.NewStore()

	v := s.Get("answer", 42)
	assert.Equal(t, 42, v)

	// The first default sticks; a later Get with a different default must
	// return the inserted value.
	v = s.Get("answer", 99)
	assert.Equal(t, 42, v)
	assert.True(t, s.Contains("answer"))
}

func TestStore_SetOverwrites(t *testing.T) {
	s := loom.NewStore()

	s.Set("k", "v1")
	s.Set("k", "v2")

	assert.Equal(t, "v2", s.Get("k", nil))
	assert.Equal(t, 1, s.Len())
}

func TestStore_DeleteAbsentIsNoOp(t *testing.T) {
	s := loom.NewStore()

	assert.NotPanics(t, func() { s.Delete("missing") })

	s.Set("k", 1)
	s.Delete("k")
	s.Delete("k")
	assert.False(t, s.Contains("k"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_EnumerationPreservesInsertionOrder(t *testing.T) {
	s := loom.NewStore()
	s.Set("b", 2)
	s.Set("a", 1)
	s.Set("c", 3)

	assert.Equal(t, []string{"b", "a", "c"}, s.Keys())
	assert.Equal(t, []any{2, 1, 3}, s.Values())
	assert.Equal(t, []loom.Item{
		{Key: "b", Value: 2},
		{Key: "a", Value: 1},
		{Key: "c", Value: 3},
	}, s.Items())
}

func TestStore_ItemsIsSnapshotNotLiveView(t *testing.T) {
	s := loom.NewStore()
	s.Set("a", 1)

	items := s.Items()
	s.Set("b", 2)
	s.Delete("a")

	assert.Equal(t, []loom.Item{{Key: "a", Value: 1}}, items)
}

// -----------------------------------------------------------------------------
// Typed Key Tests
// -----------------------------------------------------------------------------

func TestKey_GetReturnsDefaultAndInserts(t *testing.T) {
	s := loom.NewStore()
	attempts := loom.NewKey("solver:attempts", 3)

	n, err := attempts.Get(s)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, s.Contains("solver:attempts"))
}

func TestKey_SetGetRoundTrip(t *testing.T) {
	type scores struct {
		Passed int `json:"passed"`
		Failed int `json:"failed"`
	}

	s := loom.NewStore()
	key := loom.NewKey("scores", scores{})

	key.Set(s, scores{Passed: 4, Failed: 1})
	got, err := key.Get(s)
	require.NoError(t, err)
	assert.Equal(t, scores{Passed: 4, Failed: 1}, got)
}

func TestKey_GetCoercesJSONDecodedValues(t *testing.T) {
	// Values reconstructed from a transcript come back as generic JSON
	// types; the typed accessor must coerce them.
	s := loom.NewStore()
	s.Set("count", float64(7))

	count := loom.NewKey("count", 0)
	n, err := count.Get(s)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestKey_GetRejectsIncompatibleValue(t *testing.T) {
	s := loom.NewStore()
	s.Set("count", "not a number")

	count := loom.NewKey("count", 0)
	_, err := count.Get(s)
	assert.Error(t, err)
}

func TestKey_Delete(t *testing.T) {
	s := loom.NewStore()
	key := loom.NewKey("k", "")

	key.Set(s, "v")
	key.Delete(s)
	assert.False(t, s.Contains("k"))
}
