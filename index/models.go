package index

import "time"

// Folder is a remote folder in the index. Children and ParentID are ids
// into Index.Folders, never pointers.
type Folder struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ParentID      string    `json:"parentId,omitempty"` // empty only for the crawl root
	Path          string    `json:"path"`
	ImageCount    int       `json:"imageCount"` // direct images only
	CoverFileID   string    `json:"coverFileId,omitempty"`
	CoverThumbURL string    `json:"coverThumbUrl,omitempty"`
	LastModified  time.Time `json:"lastModified"`
	Children      []string  `json:"children"`
}

// Image is an image file that lives directly in one indexed folder.
type Image struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FolderID     string    `json:"folderId"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	ThumbURL     string    `json:"thumbUrl"`
	ViewURL      string    `json:"viewUrl"`
	Size         int64     `json:"size,omitempty"`
}

// Index is the denormalized mirror of one root folder.
type Index struct {
	RootFolderID      string              `json:"rootFolderId"`
	Folders           map[string]*Folder  `json:"folders"`
	Files             map[string]*Image   `json:"files"`
	FolderFiles       map[string][]string `json:"folderFiles"`
	ChangeCursor      string              `json:"changeCursor,omitempty"`
	LastSyncTime      time.Time           `json:"lastSyncTime"`
	LastFullCrawlTime time.Time           `json:"lastFullCrawlTime"`
}

// Action is the kind of change reported in a ChangeEvent.
type Action string

const (
	ActionAdded   Action = "Added"
	ActionRemoved Action = "Removed"
)

// ItemType tells whether a ChangeEvent concerns a folder or a file.
type ItemType string

const (
	ItemFolder ItemType = "Folder"
	ItemFile   ItemType = "File"
)

// ChangeEvent describes one user-visible change applied during a sync.
type ChangeEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	ItemType  ItemType  `json:"itemType"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
}

// CrawlLimits bound a traversal. Exceeding a limit truncates, never fails.
type CrawlLimits struct {
	MaxDepth          int `json:"maxDepth" mapstructure:"max_depth"`
	MaxFolders        int `json:"maxFolders" mapstructure:"max_folders"`
	MaxFilesPerFolder int `json:"maxFilesPerFolder" mapstructure:"max_files_per_folder"`
}

// DefaultLimits are used when a limit is left at zero.
var DefaultLimits = CrawlLimits{MaxDepth: 10, MaxFolders: 500, MaxFilesPerFolder: 1000}

// WithDefaults fills zero or negative limits from DefaultLimits.
func (l CrawlLimits) WithDefaults() CrawlLimits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultLimits.MaxDepth
	}
	if l.MaxFolders <= 0 {
		l.MaxFolders = DefaultLimits.MaxFolders
	}
	if l.MaxFilesPerFolder <= 0 {
		l.MaxFilesPerFolder = DefaultLimits.MaxFilesPerFolder
	}
	return l
}

// Stats are index totals.
type Stats struct {
	Folders int `json:"folders"`
	Images  int `json:"images"`
}
