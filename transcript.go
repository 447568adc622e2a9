package loom

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Listener observes events as they are appended. Listeners run synchronously
// after the append completes; they must not mutate the event.
type Listener func(Event)

// Transcript is the append-only, strictly ordered event log of one
// ExecutionContext.
//
// Append is safe to call concurrently; sequence numbers are assigned
// atomically under the transcript's lock and reflect append completion
// order. Events are immutable once appended, and Events returns a snapshot,
// never a live view.
type Transcript struct {
	mu        sync.Mutex
	seq       uint64
	events    []Event
	listeners []Listener
}

// NewTranscript creates an empty Transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds an event, stamping its ID, sequence number, and timestamp.
// Sequence numbers start at 1 and increase by one per append.
func (t *Transcript) Append(e Event) {
	t.mu.Lock()
	t.seq++
	b := e.base()
	b.ID = uuid.NewString()
	b.Sequence = t.seq
	b.Timestamp = time.Now()
	t.events = append(t.events, e)
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	// Fired outside the lock so a listener may read the transcript.
	for _, l := range listeners {
		l(e)
	}
}

// Info appends an InfoEvent carrying payload.
func (t *Transcript) Info(payload any) {
	t.Append(&InfoEvent{Payload: payload})
}

// Events returns a copy of all appended events in sequence order.
func (t *Transcript) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of appended events.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Subscribe registers a listener for future appends. Events already in the
// transcript are not replayed.
func (t *Transcript) Subscribe(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// WriteJSON writes the event log to w as a JSON array in the tagged union
// encoding.
func (t *Transcript) WriteJSON(w io.Writer) error {
	events := t.Events()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

// WriteYAML writes the event log to w as YAML, for human inspection. The
// structure matches the JSON encoding (events carry their "event" tag).
func (t *Transcript) WriteYAML(w io.Writer) error {
	// Round-trip through JSON so the YAML structure uses the same tagged
	// union shape and field names as the JSON encoding.
	data, err := json.Marshal(t.Events())
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	var generic []any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return yaml.NewEncoder(w).Encode(generic)
}
