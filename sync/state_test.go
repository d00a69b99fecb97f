package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTracker_Transitions(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	st := NewStateTracker(bus)

	assert.Equal(t, PhaseIdle, st.Get(rootID).Phase)

	st.Set(rootID, PhaseFetching, "")
	st.Set(rootID, PhaseFetching, "")
	st.Set(rootID, PhaseError, "list changes: rate limited")
	st.Set(rootID, PhaseIdle, "")

	got := st.Get(rootID)
	assert.Equal(t, PhaseIdle, got.Phase)
	assert.Equal(t, "list changes: rate limited", got.LastError)

	var phases []Phase
	for _, ev := range drain(ch) {
		assert.Equal(t, EventPhase, ev.Type)
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, []Phase{PhaseFetching, PhaseError, PhaseIdle}, phases)
}

func TestStateTracker_Snapshot(t *testing.T) {
	st := NewStateTracker(nil)
	st.Set("root000001", PhaseFullSync, "")
	st.Set("root000002", PhaseApplying, "")

	snap := st.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, PhaseFullSync, snap["root000001"].Phase)

	snap["root000001"] = RootState{Phase: PhaseError}
	assert.Equal(t, PhaseFullSync, st.Get("root000001").Phase)
}

func TestStateTracker_Nil(t *testing.T) {
	var st *StateTracker
	assert.NotPanics(t, func() { st.Set(rootID, PhaseFetching, "") })
	assert.Equal(t, PhaseIdle, st.Get(rootID).Phase)
}

func TestPhase_Busy(t *testing.T) {
	tests := []struct {
		phase Phase
		busy  bool
	}{
		{PhaseIdle, false},
		{PhaseFullSync, true},
		{PhaseFetching, true},
		{PhaseApplying, true},
		{PhaseError, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.busy, tt.phase.Busy())
		})
	}
}
