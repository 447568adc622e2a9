package loom

import (
	"context"

	"github.com/google/uuid"
)

// ExecutionContext pairs one Store with one Transcript for one unit of work.
//
// A root context is created once per sample and lives for the sample's
// duration. Subtasks get a fresh child context with an empty Store and
// Transcript; the parent's state is never visible to the child. Steps share
// the parent's Store but collect their events in a child Transcript.
//
// The "current" context travels on the context.Context passed through the
// call tree (WithContext / Current). Each goroutine's context chain is its
// own stack, so concurrently running subtasks resolve their own context
// without interfering with each other, and popping is ordinary lexical
// scoping of the ctx variable.
type ExecutionContext struct {
	id         string
	name       string
	parent     *ExecutionContext
	store      *Store
	transcript *Transcript

	// span is set when this context is the inside of an open Span. A child
	// span opening under it flushes its pending store diff first, so every
	// store mutation lands in exactly one StoreEvent.
	span *Span
}

// NewExecutionContext creates a root context with an empty Store and
// Transcript.
func NewExecutionContext(name string) *ExecutionContext {
	return &ExecutionContext{
		id:         uuid.NewString(),
		name:       name,
		store:      NewStore(),
		transcript: NewTranscript(),
	}
}

// NewChild creates a fully isolated child context with its own empty Store
// and Transcript. Used for subtasks, where the parent's Store must not be
// visible.
func (ec *ExecutionContext) NewChild(name string) *ExecutionContext {
	return &ExecutionContext{
		id:         uuid.NewString(),
		name:       name,
		parent:     ec,
		store:      NewStore(),
		transcript: NewTranscript(),
	}
}

// newSpan creates a child context that shares this context's Store but has
// its own Transcript. Used for steps and tool invocations, whose store
// mutations apply to the enclosing context while their events are grouped.
func (ec *ExecutionContext) newSpan(name string) *ExecutionContext {
	return &ExecutionContext{
		id:         uuid.NewString(),
		name:       name,
		parent:     ec,
		store:      ec.store,
		transcript: NewTranscript(),
	}
}

// ID returns the context's unique identifier.
func (ec *ExecutionContext) ID() string { return ec.id }

// Name returns the context's name (e.g. "main", "subtask:score").
func (ec *ExecutionContext) Name() string { return ec.name }

// Parent returns the parent context, or nil for a root.
func (ec *ExecutionContext) Parent() *ExecutionContext { return ec.parent }

// Store returns the context's Store.
func (ec *ExecutionContext) Store() *Store { return ec.store }

// Transcript returns the context's Transcript.
func (ec *ExecutionContext) Transcript() *Transcript { return ec.transcript }

// -----------------------------------------------------------------------------
// Current-Context Resolution
// -----------------------------------------------------------------------------

type ctxKey struct{}

// WithContext returns a context.Context carrying ec as the current
// ExecutionContext. Passing the returned context down the call tree pushes;
// letting it go out of scope pops.
func WithContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ec)
}

// Current returns the ExecutionContext carried by ctx, or nil if none.
func Current(ctx context.Context) *ExecutionContext {
	ec, _ := ctx.Value(ctxKey{}).(*ExecutionContext)
	return ec
}
