package warehouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/logging"
)

const debounceInterval = 300 * time.Millisecond

// DrivesWatcher watches the drives file and queues roots that become
// enabled. Editors often replace the file, so the parent directory is
// watched and events are filtered by name.
type DrivesWatcher struct {
	drives  *config.Drives
	path    string
	queue   *RootQueue
	watcher *fsnotify.Watcher
	known   map[string]bool
}

// NewDrivesWatcher creates a watcher for drives' file.
func NewDrivesWatcher(drives *config.Drives, queue *RootQueue) (*DrivesWatcher, error) {
	path, err := filepath.Abs(drives.Path())
	if err != nil {
		return nil, fmt.Errorf("resolve drives path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create drives dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dw := &DrivesWatcher{drives: drives, path: path, queue: queue, watcher: w}
	dw.known = dw.enabled()
	return dw, nil
}

func (w *DrivesWatcher) enabled() map[string]bool {
	list, err := w.drives.Enabled()
	if err != nil {
		logging.Sub("watcher").Warn("read drives failed", "path", w.path, "err", err)
		return w.known
	}
	return lo.SliceToMap(list, func(d config.Drive) (string, bool) { return d.FolderID, true })
}

// Start watches until ctx is cancelled.
func (w *DrivesWatcher) Start(ctx context.Context) error {
	l := logging.Sub("watcher")
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	l.Info("watching drives file", "path", w.path)

	dirty := false
	timer := time.NewTimer(debounceInterval)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			dirty = true
			timer.Reset(debounceInterval)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", "err", err)

		case <-timer.C:
			if dirty {
				dirty = false
				w.flush()
			}
		}
	}
}

// flush queues roots that are enabled now and were not before.
func (w *DrivesWatcher) flush() {
	now := w.enabled()
	var added []string
	for id := range now {
		if !w.known[id] {
			added = append(added, id)
		}
	}
	w.known = now
	for _, id := range added {
		w.queue.PushPriority(id)
	}
	logging.Sub("watcher").Info("drives file changed", "enabled", len(now), "queued", len(added))
}

// Close closes the underlying fsnotify watcher.
func (w *DrivesWatcher) Close() error {
	return w.watcher.Close()
}
