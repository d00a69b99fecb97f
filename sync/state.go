package sync

import (
	"maps"
	gosync "sync"
	"time"
)

// Phase is where a root is in its sync lifecycle.
//
//	Idle -> FullSync -> Idle
//	Idle -> Fetching -> Applying -> Idle | Error
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFullSync Phase = "fullSync"
	PhaseFetching Phase = "fetching"
	PhaseApplying Phase = "applying"
	PhaseError    Phase = "error"
)

// Busy reports whether a sync is running in this phase.
func (p Phase) Busy() bool {
	return p == PhaseFullSync || p == PhaseFetching || p == PhaseApplying
}

// RootState is the last known phase of one root.
type RootState struct {
	Phase     Phase     `json:"phase"`
	Since     time.Time `json:"since"`
	LastError string    `json:"lastError,omitempty"`
}

// StateTracker records the phase of every root it has seen. It is safe for
// concurrent use.
type StateTracker struct {
	mu     gosync.RWMutex
	roots  map[string]RootState
	events *EventBus
}

// NewStateTracker returns a tracker that announces transitions on events,
// which may be nil. A nil *StateTracker ignores Set.
func NewStateTracker(events *EventBus) *StateTracker {
	return &StateTracker{roots: make(map[string]RootState), events: events}
}

// Set moves root into phase. Entering PhaseError keeps errMsg; any other
// phase keeps the previous error for display.
func (s *StateTracker) Set(root string, phase Phase, errMsg string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	prev := s.roots[root]
	next := RootState{Phase: phase, Since: nowFunc(), LastError: prev.LastError}
	if phase == PhaseError {
		next.LastError = errMsg
	}
	s.roots[root] = next
	s.mu.Unlock()

	if prev.Phase != phase {
		s.events.Publish(Event{Type: EventPhase, RootID: root, Phase: phase})
	}
}

// Get returns the state of root. Unknown roots are idle.
func (s *StateTracker) Get(root string) RootState {
	if s == nil {
		return RootState{Phase: PhaseIdle}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.roots[root]
	if !ok {
		return RootState{Phase: PhaseIdle}
	}
	return st
}

// Snapshot copies every known state.
func (s *StateTracker) Snapshot() map[string]RootState {
	if s == nil {
		return map[string]RootState{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.roots)
}
