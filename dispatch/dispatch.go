// Package dispatch executes batches of model-requested tool calls.
//
// Tools register in a Registry with a parameter schema, a description, and a
// parallel-eligibility flag. Given the calls from one model turn, the
// Dispatcher validates arguments, runs the batch — concurrently when every
// requested tool is parallel-eligible, strictly serially in request order
// otherwise — and returns results matching the request order regardless of
// completion order.
//
// Each invocation is recorded in the current transcript as one ToolEvent
// carrying the call's own nested events and any store mutations it made.
// Failures split into model-visible ones (tool-reported errors and expected
// infrastructure failures, captured on the result) and fatal ones, which
// propagate out of the dispatcher after the ToolEvent is recorded.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/schema"
)

// ToolCall is one tool invocation request from a model turn.
type ToolCall struct {
	// ID is the model-assigned call identifier.
	ID string `json:"id"`

	// Name is the requested tool.
	Name string `json:"name"`

	// Arguments are the parsed call arguments.
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of one call, in request order. Exactly one of
// Result and Error is meaningful.
type ToolResult struct {
	CallID string          `json:"call_id"`
	Name   string          `json:"name"`
	Result any             `json:"result,omitempty"`
	Error  *loom.ToolError `json:"error,omitempty"`
}

// Tool describes one registered tool.
type Tool struct {
	// Name uniquely identifies the tool in its registry.
	Name string

	// Version distinguishes revisions of the same tool.
	Version string

	// Description is shown to the model.
	Description string

	// Parameters validates call arguments. Nil accepts any arguments; use
	// the schema builders to declare typed, described parameters.
	Parameters *schema.Schema

	// Parallel marks the tool safe to run concurrently with others in the
	// same batch. One non-parallel tool serializes the whole batch.
	Parallel bool

	// Execute runs the tool. Return a *loom.ToolError for failures the
	// model should see; any other error fails the sample.
	Execute func(ctx context.Context, args map[string]any) (any, error)
}

// Typed adapts a function with a typed input struct into a Tool execute
// function. Arguments are coerced onto I through a JSON round-trip; unknown
// fields are rejected as a model-visible parsing error.
func Typed[I any](fn func(ctx context.Context, input I) (any, error)) func(ctx context.Context, args map[string]any) (any, error) {
	return func(ctx context.Context, args map[string]any) (any, error) {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, loom.NewToolError(loom.ToolErrorParsing, "encode arguments: %v", err)
		}
		var input I
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&input); err != nil {
			return nil, loom.NewToolError(loom.ToolErrorParsing, "decode arguments: %v", err)
		}
		return fn(ctx, input)
	}
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry maps tool names to their descriptors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Registering an empty name, a nil Execute, or a name
// that is already registered is an error.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if t.Execute == nil {
		return fmt.Errorf("register tool %q: nil execute function", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("register tool %q: already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// MustRegister is like Register but panics on error. Use for tools defined
// at init time.
func (r *Registry) MustRegister(t *Tool) *Registry {
	if err := r.Register(t); err != nil {
		panic(err)
	}
	return r
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all registered descriptors, for serialization into prompts.
func (r *Registry) Tools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// -----------------------------------------------------------------------------
// Dispatcher
// -----------------------------------------------------------------------------

// Dispatcher executes tool-call batches against a Registry.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each individual tool invocation. Exceeding it is an
// expected failure reported to the model, not a fatal error. Zero means no
// timeout.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// New creates a Dispatcher over registry.
func New(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ExecuteBatch runs the calls from one model turn and returns results in
// request order.
//
// If every requested tool is parallel-eligible the calls run concurrently;
// if any tool in the batch is not, the entire batch runs serially in request
// order. Unknown tools and schema-invalid arguments produce a parsing error
// on the result without executing anything, and do not affect the policy.
//
// Model-visible failures are carried on the matching ToolResult and never
// fail the batch. A fatal error is returned after its ToolEvent is recorded;
// in serial mode later calls do not run, in parallel mode in-flight siblings
// drain first and their results are preserved.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []ToolCall) ([]ToolResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	serial := false
	for _, call := range calls {
		if t, ok := d.registry.Get(call.Name); ok && !t.Parallel {
			serial = true
			break
		}
	}

	results := make([]ToolResult, len(calls))
	if serial {
		for i, call := range calls {
			res, err := d.execute(ctx, call)
			results[i] = res
			if err != nil {
				return results, err
			}
		}
		return results, nil
	}

	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = d.execute(ctx, call)
		}()
	}
	wg.Wait()
	return results, errors.Join(errs...)
}

// execute runs one call, recording its ToolEvent in the current transcript.
// A non-nil error is fatal; model-visible failures return a nil error with
// the ToolError set on the result.
func (d *Dispatcher) execute(ctx context.Context, call ToolCall) (ToolResult, error) {
	result := ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		result.Error = loom.NewToolError(loom.ToolErrorParsing, "unknown tool %q", call.Name)
		d.record(ctx, call, result, 0, nil)
		return result, nil
	}
	if err := tool.Parameters.Validate(call.Arguments); err != nil {
		result.Error = loom.NewToolError(loom.ToolErrorParsing, "%v", err)
		d.record(ctx, call, result, 0, nil)
		return result, nil
	}

	callCtx, span := loom.BeginSpan(ctx, "tool:"+call.Name)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := tool.Execute(callCtx, call.Arguments)
	duration := time.Since(start)
	events := span.Drain()

	if err != nil {
		if te, recoverable := loom.ClassifyToolError(err); recoverable {
			result.Error = te
			d.record(ctx, call, result, duration, events)
			return result, nil
		}
		// Fatal: record the invocation for the partial transcript, then
		// let the error unwind.
		result.Error = loom.NewToolError(loom.ToolErrorUnknown, "%v", err)
		d.record(ctx, call, result, duration, events)
		return result, err
	}

	result.Result = out
	d.record(ctx, call, result, duration, events)
	return result, nil
}

func (d *Dispatcher) record(ctx context.Context, call ToolCall, result ToolResult, duration time.Duration, events []loom.Event) {
	ec := loom.Current(ctx)
	if ec == nil {
		return
	}
	ec.Transcript().Append(&loom.ToolEvent{
		CallID:    call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
		Result:    result.Result,
		Error:     result.Error,
		Duration:  duration,
		Events:    events,
	})
}
