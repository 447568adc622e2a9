package loom

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/loomkit/loom/patch"
)

// -----------------------------------------------------------------------------
// Span
// -----------------------------------------------------------------------------

// Span groups the events and store mutations that occur within it. Events
// appended under the derived context collect in the span's own transcript;
// store mutations apply to the enclosing context's Store and are diffed on
// Drain. Span is the building block under steps and tool invocations; most
// callers want BeginStep instead.
type Span struct {
	mu        sync.Mutex
	parent    *ExecutionContext
	child     *ExecutionContext
	before    map[string]any
	beforeErr error
	done      bool
	events    []Event
}

// BeginSpan opens a span on the ExecutionContext carried by ctx and returns
// a derived context routing events into it. If ctx carries no
// ExecutionContext, the span is a no-op and Drain returns nil.
func BeginSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := Current(ctx)
	if parent == nil {
		return ctx, &Span{done: true}
	}

	// Attribute the enclosing span's pending mutations to it before this
	// span snapshots the store, so replaying StoreEvents in transcript
	// order reconstructs the store exactly.
	if parent.span != nil {
		parent.span.flush()
	}

	s := &Span{
		parent: parent,
		child:  parent.newSpan(name),
	}
	s.child.span = s
	s.before, s.beforeErr = parent.store.snapshot()
	return WithContext(ctx, s.child), s
}

// flush appends a StoreEvent for mutations since the span's baseline and
// advances the baseline.
func (s *Span) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.parent == nil {
		return
	}
	if se := storeDiffEvent(s.before, s.beforeErr, s.parent.store); se != nil {
		s.child.transcript.Append(se)
	}
	s.before, s.beforeErr = s.parent.store.snapshot()
}

// Drain closes the span and returns its grouped events: everything appended
// under the span, followed by one StoreEvent if the span mutated the store.
// The caller is responsible for wrapping the events in a composite event.
// Drain is idempotent; later calls return the first call's result.
func (s *Span) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.events
	}
	s.done = true

	if s.parent == nil {
		return nil
	}
	if se := storeDiffEvent(s.before, s.beforeErr, s.parent.store); se != nil {
		s.child.transcript.Append(se)
	}
	s.events = s.child.transcript.Events()

	// Mutations made inside this span are accounted for; the enclosing
	// span must not report them again.
	if s.parent.span != nil {
		s.parent.span.rebase()
	}
	return s.events
}

// rebase advances the span's baseline to the store's current state without
// emitting anything. Called when a nested span closes, having already
// attributed the mutations it saw.
func (s *Span) rebase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.parent == nil {
		return
	}
	s.before, s.beforeErr = s.parent.store.snapshot()
}

// -----------------------------------------------------------------------------
// Step
// -----------------------------------------------------------------------------

// StepSpan is a named grouping span. On End it appends one StepEvent to the
// parent transcript wrapping the events and store mutations of the step.
type StepSpan struct {
	name   string
	parent *ExecutionContext
	span   *Span
	once   sync.Once
}

// BeginStep opens a named step on the ExecutionContext carried by ctx and
// returns a derived context that routes events into the step. Callers must
// End the span on every exit path:
//
//	ctx, span := loom.BeginStep(ctx, "solve")
//	defer span.End()
//
// Steps nest: a step begun under the returned context appends its StepEvent
// inside this step, not as a top-level sibling. If ctx carries no
// ExecutionContext, the span is a no-op.
func BeginStep(ctx context.Context, name string) (context.Context, *StepSpan) {
	parent := Current(ctx)
	ctx, span := BeginSpan(ctx, "step:"+name)
	return ctx, &StepSpan{name: name, parent: parent, span: span}
}

// End closes the step, appending its StepEvent to the parent transcript.
// The StepEvent is appended even when the step recorded nothing; the nested
// StoreEvent is included only when the step mutated the store. End is
// idempotent; calls after the first do nothing.
func (s *StepSpan) End() {
	s.once.Do(func() {
		events := s.span.Drain()
		if s.parent == nil {
			return
		}
		s.parent.transcript.Append(&StepEvent{
			Name:   s.name,
			Events: events,
		})
	})
}

// -----------------------------------------------------------------------------
// Store Diffing
// -----------------------------------------------------------------------------

// storeDiffEvent diffs the entry snapshot against the store's current state
// and returns the StoreEvent to record, or nil when nothing changed.
// beforeErr is the error from taking the entry snapshot, if any.
func storeDiffEvent(before map[string]any, beforeErr error, store *Store) *StoreEvent {
	after, afterErr := store.snapshot()
	if beforeErr != nil || afterErr != nil {
		return &StoreEvent{Diff: renderSnapshotErrors(beforeErr, afterErr)}
	}
	ops := patch.Diff(before, after)
	if len(ops) == 0 {
		return nil
	}
	return &StoreEvent{Ops: ops, Diff: renderDiff(before, after)}
}

// renderDiff produces a unified diff of the pretty-printed JSON forms of two
// store snapshots.
func renderDiff(before, after map[string]any) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(prettyJSON(before)),
		B:        difflib.SplitLines(prettyJSON(after)),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("<diff error: %v>", err)
	}
	return diff
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return string(data)
}

func renderSnapshotErrors(beforeErr, afterErr error) string {
	if beforeErr != nil {
		return fmt.Sprintf("<marshal error (before): %v>", beforeErr)
	}
	return fmt.Sprintf("<marshal error (after): %v>", afterErr)
}
