package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_Fanout(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	assert.Equal(t, 2, bus.Len())

	bus.Publish(Event{Type: EventPhase, RootID: rootID, Phase: PhaseFetching})
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)

	bus.Unsubscribe(a)
	bus.Unsubscribe(a)
	assert.Equal(t, 1, bus.Len())
	_, open := <-a
	assert.False(t, open)
	bus.Unsubscribe(b)
}

func TestEventBus_SlowClientDropsEvents(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for range 100 {
		bus.Publish(Event{Type: EventCrawlProgress})
	}
	assert.Len(t, drain(ch), 64)
}

func TestEventBus_NilIsSafe(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.Publish(Event{Type: EventSyncDone}) })
	assert.Zero(t, bus.Len())
}

func TestSyncResult_Summary(t *testing.T) {
	res := &SyncResult{Success: true, ChangesProcessed: 4, FilesAdded: 2, FilesRemoved: 1, Skipped: 1}
	assert.Equal(t, SyncSummary{Success: true, ChangesProcessed: 4, FilesAdded: 2, FilesRemoved: 1, Skipped: 1}, res.Summary())
}
