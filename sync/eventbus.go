package sync

import (
	gosync "sync"

	"github.com/ghyeongl/warehouse/index"
)

// Event types published on the bus.
const (
	EventCrawlProgress = "crawl.progress"
	EventChange        = "sync.change"
	EventSyncDone      = "sync.done"
	EventPhase         = "sync.phase"
)

// Event is a status update for SSE clients and other subscribers.
type Event struct {
	Type     string             `json:"type"`
	RootID   string             `json:"rootId"`
	Phase    Phase              `json:"phase,omitempty"`
	Progress *Progress          `json:"progress,omitempty"`
	Change   *index.ChangeEvent `json:"change,omitempty"`
	Result   *SyncSummary       `json:"result,omitempty"`
}

// SyncSummary is the part of a SyncResult worth broadcasting.
type SyncSummary struct {
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	ChangesProcessed int    `json:"changesProcessed"`
	FilesAdded       int    `json:"filesAdded"`
	FilesRemoved     int    `json:"filesRemoved"`
	Skipped          int    `json:"skipped"`
}

// Summary returns the broadcastable counters of r.
func (r *SyncResult) Summary() SyncSummary {
	return SyncSummary{
		Success:          r.Success,
		Error:            r.Error,
		ChangesProcessed: r.ChangesProcessed,
		FilesAdded:       r.FilesAdded,
		FilesRemoved:     r.FilesRemoved,
		Skipped:          r.Skipped,
	}
}

// EventBus fans events out to subscribers. A nil *EventBus drops
// everything.
type EventBus struct {
	mu      gosync.RWMutex
	clients map[chan Event]struct{}
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{clients: make(map[chan Event]struct{})}
}

// Subscribe registers a client. Unsubscribe must be called when done.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends to every client without blocking. Slow clients miss
// events.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (b *EventBus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
