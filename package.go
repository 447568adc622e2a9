// Package loom provides the per-sample state and observability core for
// model-driven evaluation runs: a scoped key-value Store, an append-only
// hierarchical Transcript of typed events, isolated subtask execution, and a
// tool dispatcher with serial-vs-parallel batch policy and a recoverable/
// fatal error taxonomy.
//
// # Execution Contexts
//
// An [ExecutionContext] pairs one [Store] with one [Transcript]. A root
// context is created once per sample; it travels implicitly on the
// context.Context passed through the call tree:
//
//	ec := loom.NewExecutionContext("main")
//	ctx := loom.WithContext(context.Background(), ec)
//
//	// Anywhere below:
//	loom.Current(ctx).Transcript().Info("starting")
//
// Because the context chain is per goroutine, concurrently running units of
// work each resolve their own ExecutionContext without interference.
//
// # Store
//
// The Store is a mutable, insertion-ordered scratchpad of JSON-representable
// values. Get inserts its default when the key is absent, and that insertion
// is itself a mutation visible to diffing:
//
//	attempts := loom.NewKey("solver:attempts", 0)
//	n, _ := attempts.Get(ec.Store())
//	attempts.Set(ec.Store(), n+1)
//
// # Steps
//
// [BeginStep] opens a named span. Events appended under the span nest inside
// one [StepEvent], and the span's store mutations collapse into a single
// [StoreEvent] carrying a structural patch and a unified diff:
//
//	ctx, span := loom.BeginStep(ctx, "solve")
//	defer span.End()
//
// Replaying every StoreEvent patch in transcript order reconstructs the
// final store state from an empty store (see the patch package).
//
// # Subtasks and Tools
//
// The subtask package runs a function in a fresh, fully isolated
// ExecutionContext and folds its transcript into the parent as one
// [SubtaskEvent]; it also provides ordered fan-out/fan-in and forking. The
// dispatch package executes tool-call batches — concurrently when every tool
// is parallel-eligible, strictly serially otherwise — recording each
// invocation as a [ToolEvent] and classifying failures into model-visible
// [ToolError]s versus fatal errors that fail the sample.
//
// # Logging
//
// [LogHandler] is a slog.Handler that captures records into the current
// context's transcript as [LoggerEvent]s.
package loom
