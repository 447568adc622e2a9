// Package tt provides test helpers shared across the loom test suites.
package tt

import (
	"github.com/loomkit/loom"
	"github.com/loomkit/loom/patch"
)

// -----------------------------------------------------------------------------
// Event Collection Helpers
// -----------------------------------------------------------------------------

// Flatten returns events in depth-first order, expanding the nested
// transcripts of composite events in place. Nested events ran before their
// composite event was appended, so this order matches execution order.
func Flatten(events []loom.Event) []loom.Event {
	var out []loom.Event
	for _, e := range events {
		switch c := e.(type) {
		case *loom.StepEvent:
			out = append(out, Flatten(c.Events)...)
		case *loom.SubtaskEvent:
			out = append(out, Flatten(c.Events)...)
		case *loom.ToolEvent:
			out = append(out, Flatten(c.Events)...)
		}
		out = append(out, e)
	}
	return out
}

// CountKinds counts events (including nested ones) by kind.
func CountKinds(events []loom.Event) map[loom.EventKind]int {
	counts := make(map[loom.EventKind]int)
	for _, e := range Flatten(events) {
		counts[e.Kind()]++
	}
	return counts
}

// FindStep returns the first StepEvent with the given name, searching nested
// transcripts, or nil.
func FindStep(events []loom.Event, name string) *loom.StepEvent {
	for _, e := range Flatten(events) {
		if step, ok := e.(*loom.StepEvent); ok && step.Name == name {
			return step
		}
	}
	return nil
}

// FindSubtask returns the first SubtaskEvent with the given name, searching
// nested transcripts, or nil.
func FindSubtask(events []loom.Event, name string) *loom.SubtaskEvent {
	for _, e := range Flatten(events) {
		if st, ok := e.(*loom.SubtaskEvent); ok && st.Name == name {
			return st
		}
	}
	return nil
}

// FindTool returns the first ToolEvent for the given tool name, searching
// nested transcripts, or nil.
func FindTool(events []loom.Event, name string) *loom.ToolEvent {
	for _, e := range Flatten(events) {
		if te, ok := e.(*loom.ToolEvent); ok && te.Name == name {
			return te
		}
	}
	return nil
}

// StoreOps returns the concatenated patch ops of every StoreEvent in
// execution order, nested transcripts included.
func StoreOps(events []loom.Event) []patch.Op {
	var ops []patch.Op
	for _, e := range Flatten(events) {
		if se, ok := e.(*loom.StoreEvent); ok {
			ops = append(ops, se.Ops...)
		}
	}
	return ops
}

// ReplayStore applies every StoreEvent patch in execution order to an empty
// document and returns the reconstruction.
func ReplayStore(events []loom.Event) (map[string]any, error) {
	return patch.Apply(map[string]any{}, StoreOps(events))
}
