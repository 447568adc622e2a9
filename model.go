package loom

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Model is the model-provider contract this library consumes. Provider
// adapters live elsewhere; anything satisfying llms.Model satisfies this.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// RecordedModel wraps a Model so every call appends a ModelEvent to the
// current context's transcript. The wrapped model's behavior is otherwise
// unchanged.
type RecordedModel struct {
	name  string
	model Model
}

// NewRecordedModel wraps model, recording calls under name.
func NewRecordedModel(name string, model Model) *RecordedModel {
	return &RecordedModel{name: name, model: model}
}

// GenerateContent calls the wrapped model and records the request/response
// pair. The event is appended whether the call succeeds or fails; on failure
// the error message is carried on the event and the error is returned
// unchanged.
func (m *RecordedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	start := time.Now()
	resp, err := m.model.GenerateContent(ctx, messages, options...)

	if ec := Current(ctx); ec != nil {
		event := &ModelEvent{
			Model:    m.name,
			Request:  messages,
			Response: resp,
			Duration: time.Since(start),
		}
		if err != nil {
			event.Error = err.Error()
		}
		ec.Transcript().Append(event)
	}
	return resp, err
}
