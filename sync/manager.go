package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/index"
	"github.com/ghyeongl/warehouse/logging"
)

// Defaults for change feed paging.
const (
	DefaultChangePageSize = 100
	DefaultMaxChangePages = 10
	DefaultMaxChanges     = 1000
)

// ManagerConfig tunes a Manager. Zero values take defaults.
type ManagerConfig struct {
	Limits         index.CrawlLimits
	ChangePageSize int
	MaxChangePages int
	MaxChanges     int // stop fetching once this many changes are queued

	Reporter      Reporter
	WarehouseName func(rootID string) string // display name for reports, optional
	Events        *EventBus
	State         *StateTracker
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	c.Limits = c.Limits.WithDefaults()
	if c.ChangePageSize <= 0 {
		c.ChangePageSize = DefaultChangePageSize
	}
	if c.MaxChangePages <= 0 {
		c.MaxChangePages = DefaultMaxChangePages
	}
	if c.MaxChanges <= 0 {
		c.MaxChanges = DefaultMaxChanges
	}
	if c.Reporter == nil {
		c.Reporter = NopReporter{}
	}
	return c
}

// Manager runs full and incremental syncs of roots against a store. It
// holds no per-root lock: concurrent runs on one root are last write wins.
type Manager struct {
	client  drive.Client
	store   *IndexStore
	crawler *Crawler
	cfg     ManagerConfig
}

// NewManager creates a new Manager.
func NewManager(client drive.Client, store *IndexStore, cfg ManagerConfig) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		client:  client,
		store:   store,
		crawler: NewCrawler(client, cfg.Limits, cfg.Events),
		cfg:     cfg,
	}
}

// Crawler returns the crawler the manager delegates to.
func (m *Manager) Crawler() *Crawler { return m.crawler }

// Events returns the bus the manager publishes on, possibly nil.
func (m *Manager) Events() *EventBus { return m.cfg.Events }

// State returns the phase tracker, possibly nil.
func (m *Manager) State() *StateTracker { return m.cfg.State }

// LoadIndex returns the stored index of rootID, or (nil, nil).
func (m *Manager) LoadIndex(ctx context.Context, rootID string) (*index.Index, error) {
	return m.store.Load(ctx, rootID)
}

// SaveIndex writes idx in full.
func (m *Manager) SaveIndex(ctx context.Context, idx *index.Index) error {
	return m.store.Save(ctx, idx)
}

// Roots lists roots with a stored index.
func (m *Manager) Roots(ctx context.Context) ([]string, error) {
	return m.store.Roots(ctx)
}

// FullSync crawls rootID from scratch and replaces the stored index.
func (m *Manager) FullSync(ctx context.Context, rootID string) (*index.Index, *CrawlReport, error) {
	l := logging.Sub("sync")
	m.cfg.State.Set(rootID, PhaseFullSync, "")

	idx, report, err := m.crawler.Crawl(ctx, rootID)
	if err != nil {
		m.cfg.State.Set(rootID, PhaseError, err.Error())
		return nil, report, fmt.Errorf("full sync %s: %w", rootID, err)
	}
	if err := m.store.Save(ctx, idx); err != nil {
		m.cfg.State.Set(rootID, PhaseError, err.Error())
		return nil, report, err
	}
	m.cfg.State.Set(rootID, PhaseIdle, "")

	m.report(ctx, idx, nil)
	l.Info("full sync saved", "root", rootID, "folders", report.FoldersIndexed, "images", report.ImagesIndexed)
	return idx, report, nil
}

// IncrementalSync applies the change feed since the stored cursor to the
// stored index. Expected failures come back as a result with Success
// false. The stored index is only written when every page was fetched and
// applied.
func (m *Manager) IncrementalSync(ctx context.Context, rootID string) *SyncResult {
	l := logging.Sub("sync")
	res := &SyncResult{
		RunID:     uuid.NewString(),
		RootID:    rootID,
		StartedAt: nowFunc(),
		Events:    []index.ChangeEvent{},
	}
	defer func() { res.Elapsed = nowFunc().Sub(res.StartedAt) }()

	idx, err := m.store.Load(ctx, rootID)
	if err != nil {
		return m.fail(res, err)
	}
	if idx == nil {
		return m.fail(res, ErrNoIndex)
	}
	if idx.ChangeCursor == "" {
		return m.fail(res, ErrNoCursor)
	}

	m.cfg.State.Set(rootID, PhaseFetching, "")
	changes, cursor, err := m.fetchChanges(ctx, idx.ChangeCursor)
	if err != nil {
		return m.fail(res, err)
	}

	m.cfg.State.Set(rootID, PhaseApplying, "")
	if err := applyChanges(ctx, m.crawler, idx, changes, res); err != nil {
		return m.fail(res, fmt.Errorf("apply changes: %w", err))
	}

	idx.ChangeCursor = cursor
	idx.LastSyncTime = nowFunc()
	if err := m.store.Save(ctx, idx); err != nil {
		return m.fail(res, err)
	}
	res.Success = true
	res.NewCursor = cursor
	m.cfg.State.Set(rootID, PhaseIdle, "")

	for i := range res.Events {
		m.cfg.Events.Publish(Event{Type: EventChange, RootID: rootID, Change: &res.Events[i]})
	}
	summary := res.Summary()
	m.cfg.Events.Publish(Event{Type: EventSyncDone, RootID: rootID, Result: &summary})
	if len(res.Events) > 0 {
		m.report(ctx, idx, res.Events)
	}

	l.Info("incremental sync complete", "root", rootID, "run", res.RunID,
		"changes", res.ChangesProcessed, "added", res.FilesAdded, "removed", res.FilesRemoved,
		"skipped", res.Skipped, "failures", len(res.Failures))
	return res
}

func (m *Manager) fail(res *SyncResult, err error) *SyncResult {
	res.Success = false
	res.Error = err.Error()
	l := logging.Sub("sync").With("root", res.RootID, "run", res.RunID)
	if errors.Is(err, ErrNoIndex) || errors.Is(err, ErrNoCursor) {
		l.Info("incremental sync not possible", "reason", err)
	} else {
		l.Error("incremental sync failed", "err", err)
		m.cfg.State.Set(res.RootID, PhaseError, err.Error())
	}
	summary := res.Summary()
	m.cfg.Events.Publish(Event{Type: EventSyncDone, RootID: res.RootID, Result: &summary})
	return res
}

// fetchChanges pages through the feed from cursor. It returns the cursor
// to persist: the terminal cursor when the feed was drained, otherwise
// the next page token so the following poll resumes there.
func (m *Manager) fetchChanges(ctx context.Context, cursor string) ([]drive.Change, string, error) {
	var all []drive.Change
	token := cursor
	for range m.cfg.MaxChangePages {
		page, err := m.client.ListChanges(ctx, token, m.cfg.ChangePageSize)
		if err != nil {
			return nil, "", fmt.Errorf("list changes: %w", err)
		}
		all = append(all, page.Changes...)
		if page.NewCursor != "" {
			return all, page.NewCursor, nil
		}
		if page.NextPageToken == "" {
			return all, token, nil
		}
		token = page.NextPageToken
		if len(all) >= m.cfg.MaxChanges {
			break
		}
	}
	logging.Sub("sync").Info("change budget reached, resuming next poll", "changes", len(all))
	return all, token, nil
}

// report hands events and totals to the Reporter. Failures are logged
// only.
func (m *Manager) report(ctx context.Context, idx *index.Index, events []index.ChangeEvent) {
	var name string
	if m.cfg.WarehouseName != nil {
		name = m.cfg.WarehouseName(idx.RootFolderID)
	}
	stats := idx.Stats()
	sent, err := m.cfg.Reporter.Report(ctx, Report{
		Warehouse:    name,
		RootFolderID: idx.RootFolderID,
		Events:       events,
		Summary: &ReportSummary{
			TotalFiles:   stats.Images,
			TotalFolders: stats.Folders,
			UpdatedAt:    idx.LastSyncTime,
		},
	})
	if err != nil {
		logging.Sub("sync").Warn("change report failed", "root", idx.RootFolderID, "err", err)
		return
	}
	if sent {
		logging.Sub("sync").Debug("change report sent", "root", idx.RootFolderID, "events", len(events))
	}
}

// CheckSyncNeeded reports whether rootID has no index or was last synced
// more than maxAge ago.
func (m *Manager) CheckSyncNeeded(ctx context.Context, rootID string, maxAge time.Duration) (bool, error) {
	idx, err := m.store.Load(ctx, rootID)
	if err != nil {
		return false, err
	}
	return syncNeeded(idx, maxAge), nil
}

func syncNeeded(idx *index.Index, maxAge time.Duration) bool {
	if idx == nil || idx.LastSyncTime.IsZero() {
		return true
	}
	return nowFunc().Sub(idx.LastSyncTime) > maxAge
}

// ReconcileResult combines the two reconciliation passes.
type ReconcileResult struct {
	Root  *ReconcileReport `json:"root"`
	Clean *CleanReport     `json:"clean"`
}

// Changed reports whether either pass modified the index.
func (r *ReconcileResult) Changed() bool {
	return r != nil && (r.Root.Changed() || r.Clean.Changed())
}

// Reconcile refreshes the root's direct children, prunes ghost folders and
// saves the index when anything changed.
func (m *Manager) Reconcile(ctx context.Context, rootID string) (*ReconcileResult, error) {
	idx, err := m.store.Load(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, fmt.Errorf("reconcile %s: %w", rootID, ErrNoIndex)
	}
	res, err := m.reconcile(ctx, idx)
	if err != nil {
		return res, err
	}
	if res.Changed() {
		if err := m.store.Save(ctx, idx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (m *Manager) reconcile(ctx context.Context, idx *index.Index) (*ReconcileResult, error) {
	rootReport, err := m.crawler.ReconcileRootChildren(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("reconcile root children: %w", err)
	}
	clean, err := m.crawler.ValidateAndClean(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("validate folders: %w", err)
	}
	return &ReconcileResult{Root: rootReport, Clean: clean}, nil
}

// TreeResult is a display tree with index totals.
type TreeResult struct {
	RootID            string           `json:"rootId"`
	Tree              *TreeNode        `json:"tree"`
	Stats             index.Stats      `json:"stats"`
	LastSyncTime      time.Time        `json:"lastSyncTime"`
	LastFullCrawlTime time.Time        `json:"lastFullCrawlTime"`
	Crawled           bool             `json:"crawled"`
	Reconciled        *ReconcileResult `json:"reconciled,omitempty"`
}

// Tree returns the display tree of rootID, crawling first when no index
// is stored. refresh reconciles a stored index before building.
func (m *Manager) Tree(ctx context.Context, rootID string, refresh bool) (*TreeResult, error) {
	idx, err := m.store.Load(ctx, rootID)
	if err != nil {
		return nil, err
	}

	res := &TreeResult{RootID: rootID}
	if idx == nil {
		if idx, _, err = m.FullSync(ctx, rootID); err != nil {
			return nil, err
		}
		res.Crawled = true
	} else if refresh {
		rec, err := m.reconcile(ctx, idx)
		if err != nil {
			return nil, err
		}
		if rec.Changed() {
			if err := m.store.Save(ctx, idx); err != nil {
				return nil, err
			}
		}
		res.Reconciled = rec
	}

	res.Tree = BuildTree(idx, rootID)
	res.Stats = idx.Stats()
	res.LastSyncTime = idx.LastSyncTime
	res.LastFullCrawlTime = idx.LastFullCrawlTime
	return res, nil
}
