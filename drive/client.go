package drive

import (
	"context"
	"time"
)

// ItemKind distinguishes folders from files.
type ItemKind string

const (
	KindFile   ItemKind = "file"
	KindFolder ItemKind = "folder"
)

// Item is remote metadata for a file or folder.
type Item struct {
	ID            string
	Name          string
	Kind          ItemKind
	MimeType      string
	ModifiedTime  time.Time
	ParentIDs     []string
	Size          int64
	ThumbnailLink string
	WebViewLink   string
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool { return i.Kind == KindFolder }

// IsImage reports whether the item is a file with an image MIME type.
func (i *Item) IsImage() bool { return i.Kind == KindFile && IsImageMime(i.MimeType) }

// Filter narrows a children listing.
type Filter int

const (
	FilterNone Filter = iota
	FilterFolders
	FilterImages
)

func (f Filter) String() string {
	switch f {
	case FilterFolders:
		return "folders"
	case FilterImages:
		return "images"
	default:
		return "all"
	}
}

// Page is one page of a children listing.
type Page struct {
	Items         []*Item
	NextPageToken string
}

// Change is one entry of the change feed. Item is nil for removals.
type Change struct {
	ItemID  string
	Removed bool
	Item    *Item
}

// ChangePage is one page of the change feed. NextPageToken means more
// pages are available now; NewCursor is set on the last page and is the
// position to poll from next time.
type ChangePage struct {
	Changes       []Change
	NextPageToken string
	NewCursor     string
}

// Client is read access to a remote hierarchical store.
type Client interface {
	GetMetadata(ctx context.Context, id string) (*Item, error)
	ListChildren(ctx context.Context, folderID string, filter Filter, pageToken string, pageSize int) (*Page, error)
	GetChangeCursor(ctx context.Context) (string, error)
	ListChanges(ctx context.Context, cursor string, pageSize int) (*ChangePage, error)
}

// DefaultPageSize is the listing page size used by ListAll.
const DefaultPageSize = 100

// ListAll pages through a folder's children until the listing is
// exhausted or max items were collected. max <= 0 means no cap.
func ListAll(ctx context.Context, c Client, folderID string, filter Filter, max int) ([]*Item, error) {
	var (
		items []*Item
		token string
	)
	for {
		size := DefaultPageSize
		if max > 0 {
			size = min(size, max-len(items))
		}
		page, err := c.ListChildren(ctx, folderID, filter, token, size)
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)
		if max > 0 && len(items) >= max {
			return items[:max], nil
		}
		if page.NextPageToken == "" {
			return items, nil
		}
		token = page.NextPageToken
	}
}

// Access is the outcome of CheckAccess.
type Access struct {
	ID         string `json:"id"`
	Accessible bool   `json:"accessible"`
	IsFolder   bool   `json:"isFolder"`
	Name       string `json:"name,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// CheckAccess fetches metadata and reports whether the item is readable.
// Classified remote failures become an inaccessible result; other errors,
// such as context cancellation, are returned.
func CheckAccess(ctx context.Context, c Client, id string) (Access, error) {
	item, err := c.GetMetadata(ctx, id)
	if err != nil {
		if kind := Kind(err); kind != nil {
			return Access{ID: id, Reason: kind.Error()}, nil
		}
		return Access{ID: id}, err
	}
	return Access{ID: id, Accessible: true, IsFolder: item.IsFolder(), Name: item.Name}, nil
}
