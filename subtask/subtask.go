// Package subtask runs units of work in fresh, fully isolated execution
// contexts.
//
// A subtask gets its own empty Store and Transcript; the parent's Store is
// never visible to it. When the subtask finishes — successfully or not — its
// complete transcript folds into the parent transcript as one SubtaskEvent.
// Inputs and outputs cross the boundary by value (deep-copied), so a subtask
// cannot alias the caller's state.
//
// Fan-out starts several subtasks with Go and joins them with WaitAll, which
// returns results in start order regardless of completion order. A failed
// branch never discards sibling work: every branch runs to completion and
// attaches its transcript before the aggregate error surfaces.
package subtask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loomkit/loom"
)

// Func is a unit of work runnable as a subtask.
type Func[I, O any] func(ctx context.Context, input I) (O, error)

// Run executes fn in a fresh child ExecutionContext with an empty Store and
// Transcript, then appends a SubtaskEvent to the parent transcript carrying
// the subtask's name, input, result or error, and full nested transcript.
// The event is appended on every exit path, so a fatal error still leaves
// the partial transcript behind as it propagates.
//
// If ctx carries no ExecutionContext, fn still runs in a fresh isolated
// context but no event is recorded.
func Run[I, O any](ctx context.Context, name string, fn Func[I, O], input I) (O, error) {
	var zero O

	copied, err := deepCopy(input)
	if err != nil {
		return zero, fmt.Errorf("subtask %s: copy input: %w", name, err)
	}

	parent := loom.Current(ctx)
	var child *loom.ExecutionContext
	if parent != nil {
		child = parent.NewChild("subtask:" + name)
	} else {
		child = loom.NewExecutionContext("subtask:" + name)
	}

	return run(loom.WithContext(ctx, child), name, fn, copied, child, parent)
}

// run invokes fn and records the SubtaskEvent. Split out so the deferred
// append observes the final named results.
func run[I, O any](ctx context.Context, name string, fn Func[I, O], input I, child, parent *loom.ExecutionContext) (out O, err error) {
	if parent != nil {
		defer func() {
			event := &loom.SubtaskEvent{
				Name:   name,
				Input:  input,
				Events: child.Transcript().Events(),
			}
			if err != nil {
				event.Error = err.Error()
			} else {
				event.Result = out
			}
			parent.Transcript().Append(event)
		}()
	}

	res, err := fn(ctx, input)
	if err != nil {
		return out, err
	}
	out, err = deepCopy(res)
	if err != nil {
		return out, fmt.Errorf("subtask %s: copy result: %w", name, err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Fan-Out
// -----------------------------------------------------------------------------

// Future is a handle to one in-flight subtask started with Go.
type Future[O any] struct {
	done chan struct{}
	out  O
	err  error
}

// Wait blocks until the subtask finishes and returns its result.
func (f *Future[O]) Wait() (O, error) {
	<-f.done
	return f.out, f.err
}

// Go starts fn as a subtask on its own goroutine and returns immediately.
// The subtask's SubtaskEvent is appended to the parent transcript when the
// subtask finishes, in completion order relative to its siblings.
func Go[I, O any](ctx context.Context, name string, fn Func[I, O], input I) *Future[O] {
	f := &Future[O]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.out, f.err = Run(ctx, name, fn, input)
	}()
	return f
}

// WaitAll joins futures in start order and returns their results in that
// order, regardless of completion order. Every branch is drained before
// WaitAll returns: a failure in one branch does not cancel its siblings or
// drop their transcripts. Branch errors are combined with errors.Join.
func WaitAll[O any](futures []*Future[O]) ([]O, error) {
	outs := make([]O, len(futures))
	var errs []error
	for i, f := range futures {
		out, err := f.Wait()
		outs[i] = out
		if err != nil {
			errs = append(errs, err)
		}
	}
	return outs, errors.Join(errs...)
}

// Fork runs each branch in parallel against its own deep copy of state and
// returns the branch outputs in branch order. Mutations made by one branch
// are never observable in another's result; the drain-on-failure policy of
// WaitAll applies.
func Fork[S, O any](ctx context.Context, name string, state S, branches ...Func[S, O]) ([]O, error) {
	futures := make([]*Future[O], len(branches))
	for i, branch := range branches {
		futures[i] = Go(ctx, fmt.Sprintf("%s[%d]", name, i), branch, state)
	}
	return WaitAll(futures)
}

func deepCopy[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
