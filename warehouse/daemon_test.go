package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/config"
)

func TestDrivesWatcher_QueuesNewlyEnabled(t *testing.T) {
	e := setup(t, sampleRemote)
	e.addDrive("Main", rootID, true)

	q := NewRootQueue()
	w, err := NewDrivesWatcher(e.drives, q)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx) //nolint:errcheck

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	e.addDrive("Other", otherRoot, true)
	e.addDrive("Off", "root000003", false)

	require.Eventually(t, func() bool { return q.Has(otherRoot) }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, q.Has(rootID), "already enabled at start")
	assert.False(t, q.Has("root000003"), "disabled")
}

func TestDaemon_Run(t *testing.T) {
	e := setup(t, sampleRemote)
	e.addDrive("Main", rootID, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.daemon.Run(ctx)
		close(done)
	}()

	// Seeding crawls the never-indexed drive.
	require.Eventually(t, func() bool {
		idx, err := e.mgr.LoadIndex(e.ctx, rootID)
		return err == nil && idx != nil
	}, 3*time.Second, 20*time.Millisecond)

	e.remote.AddImage("imageA0003", "a3.jpg", folderA, day2)
	e.daemon.Queue().Push(rootID)
	require.Eventually(t, func() bool {
		idx, err := e.mgr.LoadIndex(e.ctx, rootID)
		return err == nil && idx != nil && idx.Files["imageA0003"] != nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDaemon_Interval(t *testing.T) {
	e := setup(t, nil)

	every, auto := e.daemon.interval()
	assert.Equal(t, 5*time.Minute, every)
	assert.True(t, auto)

	_, err := e.drives.UpdateSettings(config.Settings{AutoSync: false, SyncIntervalMinutes: 30})
	require.NoError(t, err)
	every, auto = e.daemon.interval()
	assert.Equal(t, 30*time.Minute, every)
	assert.False(t, auto)
}
