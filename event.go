package loom

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/loomkit/loom/patch"
)

// -----------------------------------------------------------------------------
// Event Interface
// -----------------------------------------------------------------------------

// EventKind identifies the concrete type of an Event in its JSON form.
type EventKind string

const (
	EventKindModel   EventKind = "model"
	EventKindTool    EventKind = "tool"
	EventKindStore   EventKind = "store"
	EventKindStep    EventKind = "step"
	EventKindSubtask EventKind = "subtask"
	EventKindInfo    EventKind = "info"
	EventKindLogger  EventKind = "logger"
)

// Event is the closed union of transcript entries. Events are created by the
// library, stamped with identity and ordering on append, and immutable once
// appended.
type Event interface {
	// Kind returns the tag used for the JSON union encoding.
	Kind() EventKind

	base() *BaseEvent
}

// BaseEvent carries the fields common to every event. The Transcript fills
// them in at append time; callers leave them zero.
type BaseEvent struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Sequence is the event's position in its transcript, starting at 1.
	Sequence uint64 `json:"sequence"`

	// Timestamp is when the event was appended.
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) base() *BaseEvent { return e }

// EventList is a nested sub-transcript embedded in a composite event. It
// exists so the tagged union decodes recursively.
type EventList []Event

// UnmarshalJSON decodes each element through the kind tag.
func (l *EventList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(EventList, 0, len(raws))
	for _, raw := range raws {
		e, err := UnmarshalEvent(raw)
		if err != nil {
			return err
		}
		out = append(out, e)
	}
	*l = out
	return nil
}

// -----------------------------------------------------------------------------
// Event Types
// -----------------------------------------------------------------------------

// ModelEvent records one model call request/response pair.
type ModelEvent struct {
	BaseEvent

	// Model is the model identifier.
	Model string `json:"model"`

	// Request contains the messages sent to the model.
	Request []llms.MessageContent `json:"request"`

	// Response is the full model response (nil on error).
	Response *llms.ContentResponse `json:"response,omitempty"`

	// Duration is how long the call took.
	Duration time.Duration `json:"duration"`

	// Error is the call error message, empty on success.
	Error string `json:"error,omitempty"`
}

func (e *ModelEvent) Kind() EventKind { return EventKindModel }

// ToolEvent records one tool invocation, including any nested activity the
// tool produced while running.
type ToolEvent struct {
	BaseEvent

	// CallID is the model-assigned identifier for this invocation.
	CallID string `json:"call_id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments are the parsed invocation arguments.
	Arguments map[string]any `json:"arguments"`

	// Result is the tool's output (nil if the call errored).
	Result any `json:"result,omitempty"`

	// Error is the model-visible failure, nil on success. Fatal failures
	// are recorded with kind "unknown" before they propagate.
	Error *ToolError `json:"error,omitempty"`

	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`

	// Events is the invocation's nested sub-transcript.
	Events EventList `json:"events,omitempty"`
}

func (e *ToolEvent) Kind() EventKind { return EventKindTool }

// StoreEvent records the store mutations that occurred within a span as a
// structural patch.
type StoreEvent struct {
	BaseEvent

	// Ops is the ordered patch transforming the span-entry snapshot into
	// the span-exit snapshot.
	Ops []patch.Op `json:"ops"`

	// Diff is a human-readable unified diff of the two snapshots.
	Diff string `json:"diff,omitempty"`
}

func (e *StoreEvent) Kind() EventKind { return EventKindStore }

// StepEvent is a named grouping boundary wrapping the events that occurred
// within the step, including the step's StoreEvent if it mutated the store.
type StepEvent struct {
	BaseEvent

	// Name is the step name.
	Name string `json:"name"`

	// Events are the events appended during the step.
	Events EventList `json:"events,omitempty"`
}

func (e *StepEvent) Kind() EventKind { return EventKindStep }

// SubtaskEvent records one isolated subtask: its input, outcome, and the
// complete transcript it produced.
type SubtaskEvent struct {
	BaseEvent

	// Name is the subtask name.
	Name string `json:"name"`

	// Input is the value the subtask was invoked with.
	Input any `json:"input,omitempty"`

	// Result is the subtask's output (nil if it failed).
	Result any `json:"result,omitempty"`

	// Error is the failure message, empty on success.
	Error string `json:"error,omitempty"`

	// Events is the subtask's full nested transcript.
	Events EventList `json:"events,omitempty"`
}

func (e *SubtaskEvent) Kind() EventKind { return EventKindSubtask }

// InfoEvent is a free-form payload inserted explicitly via Transcript.Info.
type InfoEvent struct {
	BaseEvent

	// Payload is the caller-supplied content.
	Payload any `json:"payload"`
}

func (e *InfoEvent) Kind() EventKind { return EventKindInfo }

// LoggerEvent is a diagnostic log record captured into the transcript by
// LogHandler.
type LoggerEvent struct {
	BaseEvent

	// Level is the slog level string (e.g. "INFO").
	Level string `json:"level"`

	// Message is the log message.
	Message string `json:"message"`

	// Attrs are the record's attributes, grouped keys joined with ".".
	Attrs map[string]any `json:"attrs,omitempty"`
}

func (e *LoggerEvent) Kind() EventKind { return EventKindLogger }

// -----------------------------------------------------------------------------
// JSON Union Encoding
// -----------------------------------------------------------------------------

// Each event marshals with an "event" tag so external consumers can decode
// transcripts without knowing Go types. The alias types strip the custom
// marshaler to avoid recursion.

func (e *ModelEvent) MarshalJSON() ([]byte, error) {
	type alias ModelEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		*alias
	}{e.Kind(), (*alias)(e)})
}

func (e *ToolEvent) MarshalJSON() ([]byte, error) {
	type alias ToolEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		*alias
	}{e.Kind(), (*alias)(e)})
}

func (e *StoreEvent) MarshalJSON() ([]byte, error) {
	type alias StoreEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		*alias
	}{e.Kind(), (*alias)(e)})
}

func (e *StepEvent) MarshalJSON() ([]byte, error) {
	type alias StepEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		*alias
	}{e.Kind(), (*alias)(e)})
}

func (e *SubtaskEvent) MarshalJSON() ([]byte, error) {
	type alias SubtaskEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		*alias
	}{e.Kind(), (*alias)(e)})
}

func (e *InfoEvent) MarshalJSON() ([]byte, error) {
	type alias InfoEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		*alias
	}{e.Kind(), (*alias)(e)})
}

func (e *LoggerEvent) MarshalJSON() ([]byte, error) {
	type alias LoggerEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		*alias
	}{e.Kind(), (*alias)(e)})
}

// UnmarshalEvent decodes one event from its tagged JSON form.
func UnmarshalEvent(data []byte) (Event, error) {
	var probe struct {
		Event EventKind `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode event tag: %w", err)
	}

	var e Event
	switch probe.Event {
	case EventKindModel:
		e = &ModelEvent{}
	case EventKindTool:
		e = &ToolEvent{}
	case EventKindStore:
		e = &StoreEvent{}
	case EventKindStep:
		e = &StepEvent{}
	case EventKindSubtask:
		e = &SubtaskEvent{}
	case EventKindInfo:
		e = &InfoEvent{}
	case EventKindLogger:
		e = &LoggerEvent{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", probe.Event)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", probe.Event, err)
	}
	return e, nil
}
