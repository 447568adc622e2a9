package loom

import (
	"context"
	"log/slog"
)

// LogHandler is a slog.Handler that captures log records into the transcript
// of the ExecutionContext carried by the context passed to the logger.
//
// Records below the configured level, or logged with a context that carries
// no ExecutionContext, are dropped. Use it standalone or fanned out next to
// a terminal handler:
//
//	logger := slog.New(loom.NewLogHandler(slog.LevelInfo))
//	logger.InfoContext(ctx, "starting solver", "attempts", 3)
type LogHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewLogHandler creates a handler capturing records at or above level.
func NewLogHandler(level slog.Leveler) *LogHandler {
	return &LogHandler{level: level}
}

// Enabled reports whether records at level are captured.
func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle appends a LoggerEvent to the current context's transcript.
func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	ec := Current(ctx)
	if ec == nil {
		return nil
	}

	attrs := make(map[string]any)
	// Handler attrs were qualified when WithAttrs saw them.
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		h.addAttr(attrs, a)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	ec.Transcript().Append(&LoggerEvent{
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

// addAttr records a under the handler's open groups, joining group names and
// the key with ".".
func (h *LogHandler) addAttr(attrs map[string]any, a slog.Attr) {
	key := a.Key
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	attrs[key] = a.Value.Resolve().Any()
}

// WithAttrs returns a handler whose records carry attrs in addition to their
// own.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		qualified := a
		for i := len(h.groups) - 1; i >= 0; i-- {
			qualified.Key = h.groups[i] + "." + qualified.Key
		}
		next.attrs = append(next.attrs, qualified)
	}
	return &next
}

// WithGroup returns a handler that qualifies subsequent attribute keys with
// name.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = make([]string, 0, len(h.groups)+1)
	next.groups = append(next.groups, h.groups...)
	next.groups = append(next.groups, name)
	return &next
}
