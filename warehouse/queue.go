package warehouse

import (
	"log/slog"
	"slices"
	gosync "sync"

	"github.com/ghyeongl/warehouse/logging"
)

// RootQueue is a deduplicating FIFO of root ids waiting for a sync. A
// priority lane is drained before the normal one.
type RootQueue struct {
	mu       gosync.Mutex
	set      map[string]struct{}
	priority []string
	order    []string
	notify   chan struct{} // signaled when roots are added
}

// NewRootQueue creates an empty queue.
func NewRootQueue() *RootQueue {
	return &RootQueue{
		set:    make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Push appends root unless it is already queued.
func (q *RootQueue) Push(root string) {
	q.PushMany([]string{root})
}

// PushMany appends every root not yet queued, in order.
func (q *RootQueue) PushMany(roots []string) {
	q.mu.Lock()
	added := 0
	for _, root := range roots {
		if _, exists := q.set[root]; exists {
			continue
		}
		q.set[root] = struct{}{}
		q.order = append(q.order, root)
		added++
	}
	n := len(q.order)
	q.mu.Unlock()

	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("queue").Debug("push", "requested", len(roots), "added", added, "queueLen", n)
	}
	if added > 0 {
		q.signal()
	}
}

// PushPriority queues root ahead of normal pushes, promoting it when it
// is already waiting in the normal lane.
func (q *RootQueue) PushPriority(root string) {
	q.mu.Lock()
	if _, exists := q.set[root]; exists {
		i := slices.Index(q.order, root)
		if i < 0 {
			q.mu.Unlock()
			return
		}
		q.order = slices.Delete(q.order, i, i+1)
	}
	q.set[root] = struct{}{}
	q.priority = append(q.priority, root)
	q.mu.Unlock()

	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("queue").Debug("push priority", "root", root)
	}
	q.signal()
}

func (q *RootQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the next root. Blocks until a root is
// available or done is closed. Returns ("", false) when done.
func (q *RootQueue) Pop(done <-chan struct{}) (string, bool) {
	for {
		q.mu.Lock()
		var root string
		switch {
		case len(q.priority) > 0:
			root, q.priority = q.priority[0], q.priority[1:]
		case len(q.order) > 0:
			root, q.order = q.order[0], q.order[1:]
		}
		if root != "" {
			delete(q.set, root)
			q.mu.Unlock()
			return root, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			return "", false
		case <-q.notify:
		}
	}
}

// Has reports whether root is queued.
func (q *RootQueue) Has(root string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.set[root]
	return exists
}

// Len returns the number of queued roots.
func (q *RootQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.priority) + len(q.order)
}

// Drain removes and returns all queued roots.
func (q *RootQueue) Drain() []string {
	q.mu.Lock()
	out := append(q.priority, q.order...)
	q.priority, q.order = nil, nil
	q.set = make(map[string]struct{})
	q.mu.Unlock()
	return out
}
