package warehouse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/cache"
	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/drive/drivetest"
	wsync "github.com/ghyeongl/warehouse/sync"
)

const (
	rootID    = "root000001"
	otherRoot = "root000002"
	folderA   = "folderA001"
	folderB   = "folderB001"
	folderP   = "folderP001"
	folderX   = "folderX001"
	imgA1     = "imageA0001"
	imgA2     = "imageA0002"
	imgB1     = "imageB0001"
	secret    = "s3cret"
	cronToken = "cron-token"
)

var (
	day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

// sampleRemote builds
//
//	Root/
//	  A/  a1.jpg  a2.jpg
//	  B/  b1.png
//	Other/
func sampleRemote(r *drivetest.Fake) {
	r.AddFolder(rootID, "Root", "", day1)
	r.AddFolder(folderA, "Album", rootID, day1)
	r.AddImage(imgA1, "a1.jpg", folderA, day1)
	r.AddImage(imgA2, "a2.jpg", folderA, day2)
	r.AddFolder(folderB, "Beach", rootID, day1)
	r.AddImage(imgB1, "b1.png", folderB, day2)
	r.AddFolder(otherRoot, "Other", "", day1)
}

type env struct {
	t      *testing.T
	ctx    context.Context
	remote *drivetest.Fake
	mgr    *wsync.Manager
	svc    *Service
	drives *config.Drives
	daemon *Daemon
	srv    *httptest.Server
}

func setup(t *testing.T, build func(r *drivetest.Fake)) *env {
	t.Helper()
	remote := drivetest.New()
	if build != nil {
		build(remote)
	}
	kv := cache.NewMemory(0)
	t.Cleanup(func() { _ = kv.Close() })
	events := wsync.NewEventBus()
	mgr := wsync.NewManager(remote, wsync.NewIndexStore(kv, 0), wsync.ManagerConfig{
		Events: events,
		State:  wsync.NewStateTracker(events),
	})
	drives := config.NewDrives(filepath.Join(t.TempDir(), "drives.yaml"))
	svc := NewService(mgr, drives, Options{SyncSecret: secret, CronSecret: cronToken})
	daemon := NewDaemon(svc, drives)
	srv := httptest.NewServer(NewRouter(NewHandlers(svc, daemon, drives, t.TempDir()), nil))
	t.Cleanup(srv.Close)

	return &env{
		t:      t,
		ctx:    context.Background(),
		remote: remote,
		mgr:    mgr,
		svc:    svc,
		drives: drives,
		daemon: daemon,
		srv:    srv,
	}
}

func (e *env) crawl(root string) {
	e.t.Helper()
	_, err := e.svc.Crawl(e.ctx, root)
	require.NoError(e.t, err)
}

func (e *env) addDrive(name, folderID string, enabled bool) config.Drive {
	e.t.Helper()
	d, err := e.drives.Add(config.Drive{Name: name, URL: "https://drive.google.com/drive/folders/" + folderID, Enabled: enabled})
	require.NoError(e.t, err)
	return d
}

// setNow pins the package clock until the test ends.
func setNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = prev })
}

func (e *env) url(path string) string {
	return e.srv.URL + path
}

func (e *env) do(req *http.Request) *http.Response {
	e.t.Helper()
	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}
