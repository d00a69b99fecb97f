package logging

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"
)

// ringSize is how many ERROR records RecentErrors keeps.
const ringSize = 8

// LogEntry is a captured ERROR record.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Comp    string    `json:"comp"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	Root    string    `json:"root,omitempty"`
}

type errorRing struct {
	mu      gosync.Mutex
	entries [ringSize]LogEntry
	count   int
}

var ring = &errorRing{}

// RecentErrors returns the last captured ERROR records, newest first.
func RecentErrors() []LogEntry {
	return ring.recent()
}

func (r *errorRing) add(e LogEntry) {
	r.mu.Lock()
	r.entries[r.count%ringSize] = e
	r.count++
	r.mu.Unlock()
}

func (r *errorRing) recent() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(r.count, ringSize)
	out := make([]LogEntry, n)
	for i := 0; i < n; i++ {
		out[i] = r.entries[(r.count-1-i)%ringSize]
	}
	return out
}

func (r *errorRing) reset() {
	r.mu.Lock()
	r.count = 0
	r.mu.Unlock()
}

// captureHandler records ERROR records into the ring. Attributes bound
// through With are kept so the component tag survives.
type captureHandler struct {
	ring  *errorRing
	attrs []slog.Attr
}

var errRing slog.Handler = &captureHandler{ring: ring}

func (h *captureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{Time: r.Time, Message: r.Message}
	apply := func(a slog.Attr) bool {
		switch a.Key {
		case "comp":
			entry.Comp = a.Value.String()
		case "err":
			entry.Error = a.Value.String()
		case "root":
			entry.Root = a.Value.String()
		}
		return true
	}
	for _, a := range h.attrs {
		apply(a)
	}
	r.Attrs(apply)
	h.ring.add(entry)
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{ring: h.ring, attrs: merged}
}

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }
