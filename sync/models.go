package sync

import (
	"time"

	"github.com/ghyeongl/warehouse/index"
)

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// ItemResult records a contained per-item failure. The operation went on
// without the item.
type ItemResult struct {
	ID    string `json:"id"`
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

func failure(op, id, path string, err error) ItemResult {
	return ItemResult{ID: id, Op: op, Path: path, Error: err.Error(), Err: err}
}

// CrawlReport summarizes a crawl.
type CrawlReport struct {
	RootID          string        `json:"rootId"`
	FoldersIndexed  int           `json:"foldersIndexed"`
	ImagesIndexed   int           `json:"imagesIndexed"`
	FoldersSkipped  int           `json:"foldersSkipped"` // over MaxDepth or never reached
	Truncated       bool          `json:"truncated"`
	Failures        []ItemResult  `json:"failures,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
	CursorAvailable bool          `json:"cursorAvailable"`
}

// SyncResult is the outcome of one incremental sync. Expected failures
// are reported through Success and Error, never by panicking.
type SyncResult struct {
	RunID            string              `json:"runId"`
	RootID           string              `json:"rootId"`
	Success          bool                `json:"success"`
	Error            string              `json:"error,omitempty"`
	ChangesProcessed int                 `json:"changesProcessed"`
	FoldersUpdated   int                 `json:"foldersUpdated"`
	FilesAdded       int                 `json:"filesAdded"`
	FilesRemoved     int                 `json:"filesRemoved"`
	Skipped          int                 `json:"skipped"` // folder events whose parent is not indexed
	Failures         []ItemResult        `json:"failures,omitempty"`
	Events           []index.ChangeEvent `json:"events"`
	NewCursor        string              `json:"newCursor,omitempty"`
	StartedAt        time.Time           `json:"startedAt"`
	Elapsed          time.Duration       `json:"elapsed"`
}

// Progress is a crawl snapshot published after each folder.
type Progress struct {
	RootID           string `json:"rootId"`
	FoldersProcessed int    `json:"foldersProcessed"`
	FoldersQueued    int    `json:"foldersQueued"`
	ImagesFound      int    `json:"imagesFound"`
	CurrentPath      string `json:"currentPath"`
	Done             bool   `json:"done"`
}
