package warehouse

import (
	"context"
	"time"

	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/logging"
)

// Daemon keeps configured roots fresh: it seeds missing indexes, queues
// every root on a timer and syncs queued roots one at a time.
type Daemon struct {
	svc    *Service
	drives *config.Drives
	queue  *RootQueue
}

// NewDaemon creates a new sync daemon. drives may be nil, in which case
// only stored roots are synced and nothing is watched.
func NewDaemon(svc *Service, drives *config.Drives) *Daemon {
	return &Daemon{svc: svc, drives: drives, queue: NewRootQueue()}
}

// Queue returns the root queue, used by HTTP handlers to request syncs.
func (d *Daemon) Queue() *RootQueue {
	return d.queue
}

// Run seeds, starts the watcher and scheduler, then processes the queue.
// Blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) {
	l := logging.Sub("daemon")
	l.Info("sync daemon starting")

	// Phase 1: crawl enabled drives that were never indexed.
	d.seed(ctx)

	// Phase 2: queue every target once to catch up on downtime.
	d.enqueueAll(ctx)

	// Phase 3: background producers.
	if d.drives != nil {
		watcher, err := NewDrivesWatcher(d.drives, d.queue)
		if err != nil {
			l.Warn("drives watcher disabled", "err", err)
		} else {
			defer watcher.Close()
			go func() {
				if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
					l.Warn("watcher stopped unexpectedly", "err", err)
				}
			}()
		}
	}
	go d.schedule(ctx)

	// Phase 4: worker loop.
	l.Info("worker loop started")
	for {
		root, ok := d.queue.Pop(ctx.Done())
		if !ok {
			break
		}
		t := d.svc.SyncRoot(ctx, root)
		if ctx.Err() != nil {
			break
		}
		if t.Success {
			l.Info("root synced", "root", root, "type", t.Type, "changes", t.Changes, "queueLen", d.queue.Len())
		} else {
			l.Error("root sync failed", "root", root, "type", t.Type, "err", t.Error)
		}
	}
	l.Info("sync daemon stopped")
}

func (d *Daemon) seed(ctx context.Context) {
	if d.drives == nil {
		return
	}
	l := logging.Sub("daemon")
	enabled, err := d.drives.Enabled()
	if err != nil {
		l.Error("seed: read drives failed", "err", err)
		return
	}
	for _, drv := range enabled {
		if ctx.Err() != nil {
			return
		}
		has, err := d.svc.hasIndex(ctx, drv.FolderID)
		if err != nil || has {
			continue
		}
		if _, err := d.svc.Crawl(ctx, drv.FolderID); err != nil {
			l.Error("seed crawl failed", "root", drv.FolderID, "name", drv.Name, "err", err)
			continue
		}
		l.Info("seeded", "root", drv.FolderID, "name", drv.Name)
	}
}

func (d *Daemon) enqueueAll(ctx context.Context) {
	targets, err := d.svc.Targets(ctx)
	if err != nil {
		logging.Sub("daemon").Error("list sync targets failed", "err", err)
		return
	}
	d.queue.PushMany(targets)
}

// interval reads the schedule from the drives settings. ok is false when
// automatic sync is off.
func (d *Daemon) interval() (time.Duration, bool) {
	s := config.DefaultSettings
	if d.drives != nil {
		f, err := d.drives.Read()
		if err != nil {
			logging.Sub("daemon").Warn("read settings failed", "err", err)
		} else {
			s = f.Settings
		}
	}
	return time.Duration(s.SyncIntervalMinutes) * time.Minute, s.AutoSync
}

// schedule queues every target each interval. Settings are re-read every
// round, so edits apply from the next one.
func (d *Daemon) schedule(ctx context.Context) {
	for {
		every, auto := d.interval()
		timer := time.NewTimer(every)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if auto {
			d.enqueueAll(ctx)
		}
	}
}
