package drive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marusama/semaphore/v2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ghyeongl/warehouse/logging"
)

const (
	fileFields   = "id, name, mimeType, modifiedTime, parents, size, thumbnailLink, webViewLink, trashed"
	listFields   = "nextPageToken, files(" + fileFields + ")"
	changeFields = "nextPageToken, newStartPageToken, changes(fileId, removed, file(" + fileFields + "))"
)

// GoogleOptions configures a GoogleClient.
type GoogleOptions struct {
	APIKey string
	// Endpoint overrides the API base URL, e.g. for a test server.
	Endpoint string
	// HTTPClient replaces the default transport. The API key is not
	// attached when it is set.
	HTTPClient *http.Client
	// MaxConcurrent bounds in-flight requests. Zero means 8.
	MaxConcurrent int
}

// GoogleClient reads folders, files and the change feed from Google Drive.
type GoogleClient struct {
	svc *drivev3.Service
	sem semaphore.Semaphore
}

var _ Client = (*GoogleClient)(nil)

// NewGoogleClient builds a Drive v3 client authenticated by API key.
func NewGoogleClient(ctx context.Context, opts GoogleOptions) (*GoogleClient, error) {
	var copts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		copts = append(copts, option.WithHTTPClient(opts.HTTPClient))
	case opts.APIKey != "":
		copts = append(copts, option.WithAPIKey(opts.APIKey))
	default:
		return nil, fmt.Errorf("new drive client: api key: %w", ErrInvalidInput)
	}
	if opts.Endpoint != "" {
		copts = append(copts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := drivev3.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("new drive service: %w", err)
	}

	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = 8
	}
	return &GoogleClient{svc: svc, sem: semaphore.New(limit)}, nil
}

func (c *GoogleClient) acquire(ctx context.Context) (func(), error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.sem.Release(1) }, nil
}

// GetMetadata fetches one item.
func (c *GoogleClient) GetMetadata(ctx context.Context, id string) (*Item, error) {
	if !ValidateID(id) {
		return nil, Errorf(ErrInvalidInput, "get metadata", id)
	}
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	f, err := c.svc.Files.Get(id).
		Fields(googleapi.Field(fileFields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("get metadata", id, err)
	}
	return toItem(f), nil
}

// ListChildren lists one page of a folder's non-trashed children, ordered
// by name.
func (c *GoogleClient) ListChildren(ctx context.Context, folderID string, filter Filter, pageToken string, pageSize int) (*Page, error) {
	if !ValidateID(folderID) {
		return nil, Errorf(ErrInvalidInput, "list children", folderID)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	call := c.svc.Files.List().
		Q(childrenQuery(folderID, filter)).
		PageSize(int64(pageSize)).
		OrderBy("name").
		Fields(googleapi.Field(listFields)).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	start := time.Now()
	list, err := call.Do()
	if err != nil {
		return nil, classify("list children", folderID, err)
	}
	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("drive").Debug("list children",
			"folder", folderID, "filter", filter, "count", len(list.Files),
			"more", list.NextPageToken != "", "elapsed", time.Since(start))
	}

	page := &Page{NextPageToken: list.NextPageToken, Items: make([]*Item, 0, len(list.Files))}
	for _, f := range list.Files {
		page.Items = append(page.Items, toItem(f))
	}
	return page, nil
}

// GetChangeCursor returns the current start position of the change feed.
func (c *GoogleClient) GetChangeCursor(ctx context.Context) (string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	tok, err := c.svc.Changes.GetStartPageToken().
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("get change cursor", "", err)
	}
	return tok.StartPageToken, nil
}

// ListChanges reads one page of the change feed. Trashed items are
// reported as removals.
func (c *GoogleClient) ListChanges(ctx context.Context, cursor string, pageSize int) (*ChangePage, error) {
	if cursor == "" {
		return nil, Errorf(ErrInvalidInput, "list changes", cursor)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	list, err := c.svc.Changes.List(cursor).
		PageSize(int64(pageSize)).
		IncludeRemoved(true).
		Spaces("drive").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Fields(googleapi.Field(changeFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("list changes", cursor, err)
	}

	page := &ChangePage{
		NextPageToken: list.NextPageToken,
		NewCursor:     list.NewStartPageToken,
		Changes:       make([]Change, 0, len(list.Changes)),
	}
	for _, ch := range list.Changes {
		if ch.FileId == "" {
			continue // drive-level change
		}
		if ch.Removed || ch.File == nil || ch.File.Trashed {
			page.Changes = append(page.Changes, Change{ItemID: ch.FileId, Removed: true})
			continue
		}
		page.Changes = append(page.Changes, Change{ItemID: ch.FileId, Item: toItem(ch.File)})
	}
	return page, nil
}

func childrenQuery(folderID string, filter Filter) string {
	q := fmt.Sprintf("'%s' in parents and trashed = false", strings.ReplaceAll(folderID, "'", `\'`))
	switch filter {
	case FilterFolders:
		q += fmt.Sprintf(" and mimeType = '%s'", FolderMimeType)
	case FilterImages:
		clauses := make([]string, 0, len(imageMimeTypes))
		for _, mt := range ImageMimeTypes() {
			clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", mt))
		}
		q += " and (" + strings.Join(clauses, " or ") + ")"
	}
	return q
}

func toItem(f *drivev3.File) *Item {
	item := &Item{
		ID:            f.Id,
		Name:          f.Name,
		Kind:          kindOf(f.MimeType),
		MimeType:      f.MimeType,
		ParentIDs:     f.Parents,
		Size:          f.Size,
		ThumbnailLink: f.ThumbnailLink,
		WebViewLink:   f.WebViewLink,
	}
	if item.Kind == KindFile && (item.MimeType == "" || item.MimeType == "application/octet-stream") {
		if guessed := MimeFromName(f.Name); guessed != "" {
			item.MimeType = guessed
		}
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		item.ModifiedTime = t.UTC()
	}
	return item
}
