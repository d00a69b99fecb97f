// Package warehouse serves indexed drive folders over HTTP and keeps them
// fresh in the background.
package warehouse

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/index"
	"github.com/ghyeongl/warehouse/logging"
	wsync "github.com/ghyeongl/warehouse/sync"
)

// DefaultStaleAfter is how old an index may get before Status syncs it.
const DefaultStaleAfter = 30 * time.Minute

const maxQueryLength = 100

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// MsgNoIndex is returned by status and search for a root never crawled.
const MsgNoIndex = "Index not found. Load the folder first."

// DriveSource lists configured drives.
type DriveSource interface {
	Enabled() ([]config.Drive, error)
	Name(folderID string) string
}

// Options configures a Service.
type Options struct {
	SyncSecret string
	CronSecret string
	StaleAfter time.Duration
}

// Service is the request-level API over a sync.Manager. Concurrent calls
// of the same operation on the same root share one run.
type Service struct {
	mgr    *wsync.Manager
	drives DriveSource
	opts   Options
	group  singleflight.Group
}

// NewService creates a new Service. drives may be nil.
func NewService(mgr *wsync.Manager, drives DriveSource, opts Options) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Service{mgr: mgr, drives: drives, opts: opts}
}

// Manager returns the underlying sync manager.
func (s *Service) Manager() *wsync.Manager { return s.mgr }

// Name returns the configured name of rootID, falling back to the id.
func (s *Service) Name(rootID string) string {
	if s.drives != nil {
		if name := s.drives.Name(rootID); name != "" {
			return name
		}
	}
	return rootID
}

// CheckSecret reports whether secret matches the sync secret. An unset
// sync secret rejects everything.
func (s *Service) CheckSecret(secret string) bool {
	return matchSecret(s.opts.SyncSecret, secret)
}

// CheckCron reports whether token matches the cron secret.
func (s *Service) CheckCron(token string) bool {
	return matchSecret(s.opts.CronSecret, token)
}

func matchSecret(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func validRoot(op, rootID string) error {
	if !drive.ValidateID(rootID) {
		return drive.Errorf(drive.ErrInvalidInput, op, rootID)
	}
	return nil
}

func do[T any](s *Service, key string, fn func() (T, error)) (T, error) {
	v, err, shared := s.group.Do(key, func() (any, error) { return fn() })
	if shared && logging.Enabled(slog.LevelDebug) {
		logging.Sub("service").Debug("joined in-flight run", "key", key)
	}
	out, _ := v.(T)
	return out, err
}

// Tree returns the display tree of rootID, crawling it first when it was
// never indexed.
func (s *Service) Tree(ctx context.Context, rootID string, refresh bool) (*wsync.TreeResult, error) {
	if err := validRoot("tree", rootID); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("tree:%s:%t", rootID, refresh)
	return do(s, key, func() (*wsync.TreeResult, error) {
		return s.mgr.Tree(ctx, rootID, refresh)
	})
}

// CrawlResult is the outcome of a full crawl.
type CrawlResult struct {
	RootID       string             `json:"rootId"`
	TotalFolders int                `json:"totalFolders"`
	TotalImages  int                `json:"totalImages"`
	LastSyncTime time.Time          `json:"lastSyncTime"`
	Report       *wsync.CrawlReport `json:"report"`
}

// Crawl rebuilds the index of rootID from scratch.
func (s *Service) Crawl(ctx context.Context, rootID string) (*CrawlResult, error) {
	if err := validRoot("crawl", rootID); err != nil {
		return nil, err
	}
	return do(s, "crawl:"+rootID, func() (*CrawlResult, error) {
		idx, report, err := s.mgr.FullSync(ctx, rootID)
		if err != nil {
			return nil, err
		}
		stats := idx.Stats()
		return &CrawlResult{
			RootID:       rootID,
			TotalFolders: stats.Folders,
			TotalImages:  stats.Images,
			LastSyncTime: idx.LastSyncTime,
			Report:       report,
		}, nil
	})
}

// SyncOutcome is the result of Sync. Exactly one of Crawl and Result is
// set, matching Type.
type SyncOutcome struct {
	Type       string                 `json:"type"`
	Crawl      *CrawlResult           `json:"crawl,omitempty"`
	Result     *wsync.SyncResult      `json:"result,omitempty"`
	Reconciled *wsync.ReconcileResult `json:"reconciled,omitempty"`
}

// Success reports whether the sync completed.
func (o *SyncOutcome) Success() bool {
	if o.Crawl != nil {
		return true
	}
	return o.Result != nil && o.Result.Success
}

// Sync runs a full crawl or an incremental sync of rootID. An incremental
// sync that skipped folders under unknown parents is followed by a
// reconciliation pass.
func (s *Service) Sync(ctx context.Context, rootID string, full bool) (*SyncOutcome, error) {
	if err := validRoot("sync", rootID); err != nil {
		return nil, err
	}
	if full {
		res, err := s.Crawl(ctx, rootID)
		if err != nil {
			return nil, err
		}
		return &SyncOutcome{Type: "full", Crawl: res}, nil
	}
	return do(s, "sync:"+rootID, func() (*SyncOutcome, error) {
		return s.incremental(ctx, rootID), nil
	})
}

func (s *Service) incremental(ctx context.Context, rootID string) *SyncOutcome {
	res := s.mgr.IncrementalSync(ctx, rootID)
	out := &SyncOutcome{Type: "incremental", Result: res}
	if res.Success && res.Skipped > 0 {
		rec, err := s.mgr.Reconcile(ctx, rootID)
		if err != nil {
			logging.Sub("service").Warn("reconcile after sync failed", "root", rootID, "err", err)
		}
		out.Reconciled = rec
	}
	return out
}

// SyncTarget is one root's line in a SyncAll report.
type SyncTarget struct {
	FolderID string `json:"folderId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Changes  int    `json:"changes"`
	Error    string `json:"error,omitempty"`
}

// SyncAllResult reports a SyncAll run.
type SyncAllResult struct {
	Synced  int          `json:"synced"`
	Failed  int          `json:"failed"`
	Results []SyncTarget `json:"results"`
}

// Targets returns enabled drive roots followed by every other stored
// root, without duplicates.
func (s *Service) Targets(ctx context.Context) ([]string, error) {
	var ids []string
	if s.drives != nil {
		enabled, err := s.drives.Enabled()
		if err != nil {
			return nil, err
		}
		ids = lo.Map(enabled, func(d config.Drive, _ int) string { return d.FolderID })
	}
	stored, err := s.mgr.Roots(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(append(ids, stored...)), nil
}

// SyncAll syncs every target in turn. A root without an index is crawled.
func (s *Service) SyncAll(ctx context.Context) (*SyncAllResult, error) {
	targets, err := s.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sync targets: %w", err)
	}

	out := &SyncAllResult{Results: []SyncTarget{}}
	for _, root := range targets {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		t := s.SyncRoot(ctx, root)
		if t.Success {
			out.Synced++
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, t)
	}
	logging.Sub("service").Info("sync all done", "synced", out.Synced, "failed", out.Failed)
	return out, nil
}

// SyncRoot brings one root up to date: a crawl when nothing is stored,
// else an incremental sync.
func (s *Service) SyncRoot(ctx context.Context, rootID string) SyncTarget {
	t := SyncTarget{FolderID: rootID, Name: s.Name(rootID)}

	has, err := s.hasIndex(ctx, rootID)
	if err != nil {
		t.Error = err.Error()
		return t
	}
	outcome, err := s.Sync(ctx, rootID, !has)
	if err != nil {
		t.Type = "full"
		t.Error = err.Error()
		return t
	}

	t.Type = outcome.Type
	t.Success = outcome.Success()
	switch {
	case outcome.Crawl != nil:
		t.Changes = outcome.Crawl.TotalFolders + outcome.Crawl.TotalImages
	case outcome.Result != nil:
		t.Changes = outcome.Result.ChangesProcessed
		t.Error = outcome.Result.Error
	}
	return t
}

func (s *Service) hasIndex(ctx context.Context, rootID string) (bool, error) {
	idx, err := s.mgr.LoadIndex(ctx, rootID)
	return idx != nil, err
}

// Status describes a root's index freshness.
type Status struct {
	RootID            string      `json:"rootId"`
	LastSyncTime      *time.Time  `json:"lastSyncTime"`
	LastFullCrawlTime *time.Time  `json:"lastFullCrawlTime"`
	TotalFolders      int         `json:"totalFolders"`
	TotalImages       int         `json:"totalImages"`
	IsSyncing         bool        `json:"isSyncing"`
	Phase             wsync.Phase `json:"phase"`
	Synced            bool        `json:"synced"`
	Error             string      `json:"error,omitempty"`
}

// Status reports a root's totals. An index older than StaleAfter is
// synced first; a failure there is reported in Error, not returned.
func (s *Service) Status(ctx context.Context, rootID string) (*Status, error) {
	if err := validRoot("status", rootID); err != nil {
		return nil, err
	}
	st := &Status{RootID: rootID}

	idx, err := s.mgr.LoadIndex(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		st.Phase = s.mgr.State().Get(rootID).Phase
		st.IsSyncing = st.Phase.Busy()
		st.Error = MsgNoIndex
		return st, nil
	}

	if nowFunc().Sub(idx.LastSyncTime) > s.opts.StaleAfter {
		outcome, err := s.Sync(ctx, rootID, false)
		switch {
		case err != nil:
			st.Error = err.Error()
		case !outcome.Success():
			st.Error = outcome.Result.Error
		default:
			st.Synced = true
		}
		if idx, err = s.mgr.LoadIndex(ctx, rootID); err != nil {
			return nil, err
		}
		if idx == nil {
			return nil, fmt.Errorf("status %s: %w", rootID, wsync.ErrNoIndex)
		}
	}

	stats := idx.Stats()
	st.TotalFolders = stats.Folders
	st.TotalImages = stats.Images
	st.LastSyncTime = timePtr(idx.LastSyncTime)
	st.LastFullCrawlTime = timePtr(idx.LastFullCrawlTime)
	st.Phase = s.mgr.State().Get(rootID).Phase
	st.IsSyncing = st.Phase.Busy()
	return st, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// SanitizeQuery trims q, caps it at 100 characters and drops characters
// used for markup injection.
func SanitizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if r := []rune(q); len(r) > maxQueryLength {
		q = string(r[:maxQueryLength])
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>'"`, r) {
			return -1
		}
		return r
	}, q)
}

// ErrQueryTooShort rejects queries below index.MinQueryLength.
var ErrQueryTooShort = errors.New("search query must be at least 2 characters")

// Search matches folders and images of rootID against q.
func (s *Service) Search(ctx context.Context, rootID, q string, limit int) (index.SearchResult, string, error) {
	q = SanitizeQuery(q)
	if len([]rune(q)) < index.MinQueryLength {
		return index.SearchResult{}, q, ErrQueryTooShort
	}
	if err := validRoot("search", rootID); err != nil {
		return index.SearchResult{}, q, err
	}
	idx, err := s.loadExisting(ctx, rootID)
	if err != nil {
		return index.SearchResult{}, q, err
	}
	return idx.Search(q, limit), q, nil
}

// FolderImages pages the direct images of folderID in rootID's index,
// crawling the root first when it was never indexed.
func (s *Service) FolderImages(ctx context.Context, rootID, folderID string, q index.PageQuery) (index.ImagePage, error) {
	if err := validRoot("folder images", rootID); err != nil {
		return index.ImagePage{}, err
	}
	if err := validRoot("folder images", folderID); err != nil {
		return index.ImagePage{}, err
	}
	has, err := s.hasIndex(ctx, rootID)
	if err != nil {
		return index.ImagePage{}, err
	}
	if !has {
		if _, err := s.Tree(ctx, rootID, false); err != nil {
			return index.ImagePage{}, err
		}
	}
	idx, err := s.loadExisting(ctx, rootID)
	if err != nil {
		return index.ImagePage{}, err
	}
	return idx.Page(folderID, q), nil
}

func (s *Service) loadExisting(ctx context.Context, rootID string) (*index.Index, error) {
	idx, err := s.mgr.LoadIndex(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, fmt.Errorf("load %s: %w", rootID, wsync.ErrNoIndex)
	}
	return idx, nil
}
