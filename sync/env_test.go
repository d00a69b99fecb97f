package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/cache"
	"github.com/ghyeongl/warehouse/drive/drivetest"
	"github.com/ghyeongl/warehouse/index"
)

const (
	rootID  = "root000001"
	folderA = "folderA001"
	folderB = "folderB001"
	folderC = "folderC001"
	folderD = "folderD001"
	imgA1   = "imageA0001"
	imgA3   = "imageA0003"
	imgC2   = "imageC0002"
)

var (
	day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)

// sampleRemote builds
//
//	Root/
//	  A/  a1.jpg (day1)  a3.jpg (day3)
//	  B/
//	    C/  c2.jpg (day2)
func sampleRemote(r *drivetest.Fake) {
	r.AddFolder(rootID, "Root", "", day1)
	r.AddFolder(folderA, "A", rootID, day1)
	r.AddImage(imgA1, "a1.jpg", folderA, day1)
	r.AddImage(imgA3, "a3.jpg", folderA, day3)
	r.AddFolder(folderB, "B", rootID, day1)
	r.AddFolder(folderC, "C", folderB, day1)
	r.AddImage(imgC2, "c2.jpg", folderC, day2)
}

type syncEnv struct {
	t      *testing.T
	ctx    context.Context
	remote *drivetest.Fake
	store  *IndexStore
	mgr    *Manager
	events *EventBus
	state  *StateTracker
}

func setupSync(t *testing.T, cfg ManagerConfig, build func(r *drivetest.Fake)) *syncEnv {
	t.Helper()
	remote := drivetest.New()
	if build != nil {
		build(remote)
	}
	if cfg.Events == nil {
		cfg.Events = NewEventBus()
	}
	if cfg.State == nil {
		cfg.State = NewStateTracker(cfg.Events)
	}
	store := NewIndexStore(memoryCache(t), 0)
	return &syncEnv{
		t:      t,
		ctx:    context.Background(),
		remote: remote,
		store:  store,
		mgr:    NewManager(remote, store, cfg),
		events: cfg.Events,
		state:  cfg.State,
	}
}

func (e *syncEnv) fullSync() *index.Index {
	e.t.Helper()
	idx, _, err := e.mgr.FullSync(e.ctx, rootID)
	require.NoError(e.t, err)
	return idx
}

func (e *syncEnv) sync() *SyncResult {
	e.t.Helper()
	res := e.mgr.IncrementalSync(e.ctx, rootID)
	require.True(e.t, res.Success, res.Error)
	return res
}

func (e *syncEnv) load() *index.Index {
	e.t.Helper()
	idx, err := e.store.Load(e.ctx, rootID)
	require.NoError(e.t, err)
	require.NotNil(e.t, idx)
	require.NoError(e.t, idx.Check())
	return idx
}

// memoryCache returns a default-sized memory cache closed at test end.
func memoryCache(t *testing.T) *cache.Memory {
	t.Helper()
	kv := cache.NewMemory(0)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// setNow pins the package clock until the test ends.
func setNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = prev })
}

// drain collects everything buffered on ch without blocking.
func drain(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

type recordingReporter struct {
	reports []Report
	err     error
}

func (r *recordingReporter) Report(_ context.Context, rep Report) (bool, error) {
	r.reports = append(r.reports, rep)
	return r.err == nil, r.err
}
