package testutils

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// RecordingHandler is a slog.Handler keeping every record in memory.
type RecordingHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

// NewRecordingHandler returns an empty RecordingHandler.
func NewRecordingHandler() *RecordingHandler {
	return &RecordingHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
}

// Enabled implements slog.Handler. Every level is enabled.
func (h *RecordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
func (h *RecordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r = r.Clone()
	r.AddAttrs(h.attrs...)
	*h.records = append(*h.records, r)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RecordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RecordingHandler{mu: h.mu, records: h.records, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

// WithGroup implements slog.Handler. Groups are ignored.
func (h *RecordingHandler) WithGroup(string) slog.Handler {
	return h
}

// Find returns the attributes of the records at level whose message starts with prefix.
func (h *RecordingHandler) Find(level slog.Level, prefix string) []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	var found []map[string]any
	for _, r := range *h.records {
		if r.Level != level || !strings.HasPrefix(r.Message, prefix) {
			continue
		}
		attrs := make(map[string]any)
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.Any()
			return true
		})
		found = append(found, attrs)
	}
	return found
}
