package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/index"
	"github.com/ghyeongl/warehouse/logging"
)

// maxSubfolders caps one folder's subfolder listing.
const maxSubfolders = 1000

// Crawler builds indexes by breadth-first traversal of the remote store.
type Crawler struct {
	client drive.Client
	limits index.CrawlLimits
	events *EventBus
}

// NewCrawler returns a crawler. events may be nil.
func NewCrawler(client drive.Client, limits index.CrawlLimits, events *EventBus) *Crawler {
	return &Crawler{client: client, limits: limits.WithDefaults(), events: events}
}

// Limits returns the bounds the crawler enforces.
func (c *Crawler) Limits() index.CrawlLimits {
	return c.limits
}

type crawlTask struct {
	id       string
	name     string
	parentID string
	path     string
	depth    int
	modified time.Time
}

// FolderScan is one folder's direct contents.
type FolderScan struct {
	Folder     *index.Folder
	Images     []*index.Image
	Subfolders []*drive.Item
}

// Crawl builds a fresh index of rootID. Invalid ids and non-folders are
// rejected before any listing. Failures below the root are recorded in
// the report and the affected folder is left out.
func (c *Crawler) Crawl(ctx context.Context, rootID string) (*index.Index, *CrawlReport, error) {
	l := logging.Sub("crawler")
	start := nowFunc()

	if !drive.ValidateID(rootID) {
		return nil, nil, drive.Errorf(drive.ErrInvalidInput, "crawl", rootID)
	}
	meta, err := c.client.GetMetadata(ctx, rootID)
	if err != nil {
		return nil, nil, fmt.Errorf("get root metadata: %w", err)
	}
	if !meta.IsFolder() {
		return nil, nil, drive.Errorf(drive.ErrNotAFolder, "crawl", rootID)
	}

	l.Info("crawl starting", "root", rootID, "name", meta.Name,
		"maxDepth", c.limits.MaxDepth, "maxFolders", c.limits.MaxFolders)

	idx := index.New(rootID)
	report := &CrawlReport{RootID: rootID}
	root := crawlTask{id: rootID, name: meta.Name, path: meta.Name, modified: meta.ModifiedTime}
	if _, err := c.walk(ctx, idx, []crawlTask{root}, report); err != nil {
		return nil, report, err
	}
	if idx.Root() == nil {
		return nil, report, fmt.Errorf("crawl %s: root listing failed: %s", rootID, report.Failures[0].Error)
	}

	// the cursor is taken after the walk; changes made during the walk are
	// replayed by the next incremental sync
	cursor, err := c.client.GetChangeCursor(ctx)
	if err != nil {
		l.Warn("change cursor unavailable", "root", rootID, "err", err)
		report.Failures = append(report.Failures, failure("change cursor", rootID, "", err))
	} else {
		idx.ChangeCursor = cursor
		report.CursorAvailable = true
	}

	now := nowFunc()
	idx.LastSyncTime = now
	idx.LastFullCrawlTime = now

	stats := idx.Stats()
	report.FoldersIndexed = stats.Folders
	report.ImagesIndexed = stats.Images
	report.Elapsed = now.Sub(start)

	c.events.Publish(Event{Type: EventCrawlProgress, RootID: rootID, Progress: &Progress{
		RootID: rootID, FoldersProcessed: stats.Folders, ImagesFound: stats.Images, Done: true,
	}})
	l.Info("crawl complete", "root", rootID, "folders", stats.Folders, "images", stats.Images,
		"failures", len(report.Failures), "truncated", report.Truncated, "elapsed", report.Elapsed)
	return idx, report, nil
}

// CrawlFolder lists one folder in isolation. parentPath is the indexed
// path of its parent, empty for a root.
func (c *Crawler) CrawlFolder(ctx context.Context, folderID, parentPath string) (*FolderScan, error) {
	meta, err := c.client.GetMetadata(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("get folder metadata: %w", err)
	}
	if !meta.IsFolder() {
		return nil, drive.Errorf(drive.ErrNotAFolder, "crawl folder", folderID)
	}
	var parentID string
	if len(meta.ParentIDs) > 0 {
		parentID = meta.ParentIDs[0]
	}
	return c.scan(ctx, crawlTask{
		id:       folderID,
		name:     meta.Name,
		parentID: parentID,
		path:     index.ChildPath(parentPath, meta.Name),
		modified: meta.ModifiedTime,
	})
}

// Expand indexes a folder that is new under an indexed parent, along with
// its subtree. The folder itself is indexed even when idx is already at
// the folder limit; its descendants are not. It returns the ids added.
func (c *Crawler) Expand(ctx context.Context, idx *index.Index, item *drive.Item, parentID string) ([]string, []ItemResult, error) {
	parent, ok := idx.Folders[parentID]
	if !ok {
		return nil, nil, fmt.Errorf("expand %s: parent %s not indexed", item.ID, parentID)
	}
	depth := idx.Depth(parentID) + 1
	if depth < 1 {
		depth = 1
	}
	report := &CrawlReport{RootID: idx.RootFolderID}
	added, err := c.walk(ctx, idx, []crawlTask{{
		id:       item.ID,
		name:     item.Name,
		parentID: parentID,
		path:     index.ChildPath(parent.Path, item.Name),
		depth:    depth,
		modified: item.ModifiedTime,
	}}, report)
	return added, report.Failures, err
}

// walk runs the breadth-first traversal from queue, adding folders and
// images to idx. Folders already in idx are not revisited. The folder
// limit bounds descendants only: the first folder taken from queue is
// always indexed. Children that were never indexed are pruned from the
// added folders before returning.
func (c *Crawler) walk(ctx context.Context, idx *index.Index, queue []crawlTask, report *CrawlReport) ([]string, error) {
	l := logging.Sub("crawler")
	visited := make(map[string]struct{})
	var added []string

	defer func() { pruneChildren(idx, added) }()

	for len(queue) > 0 {
		if len(added) > 0 && len(idx.Folders) >= c.limits.MaxFolders {
			report.Truncated = true
			report.FoldersSkipped += len(queue)
			l.Info("folder limit reached", "root", idx.RootFolderID, "limit", c.limits.MaxFolders, "pending", len(queue))
			break
		}
		if err := ctx.Err(); err != nil {
			return added, err
		}

		t := queue[0]
		queue = queue[1:]
		if _, seen := visited[t.id]; seen {
			continue
		}
		visited[t.id] = struct{}{}
		if _, indexed := idx.Folders[t.id]; indexed {
			continue
		}
		if t.depth > c.limits.MaxDepth {
			report.FoldersSkipped++
			continue
		}

		scan, err := c.scan(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return added, ctx.Err()
			}
			l.Warn("folder skipped", "root", idx.RootFolderID, "folder", t.id, "path", t.path, "err", err)
			report.Failures = append(report.Failures, failure("crawl folder", t.id, t.path, err))
			continue
		}

		idx.PutFolder(scan.Folder)
		for _, img := range scan.Images {
			idx.PutFile(img)
		}
		if t.parentID != "" {
			idx.AttachChild(t.parentID, t.id)
		}
		added = append(added, t.id)

		for _, sub := range scan.Subfolders {
			queue = append(queue, crawlTask{
				id:       sub.ID,
				name:     sub.Name,
				parentID: t.id,
				path:     index.ChildPath(t.path, sub.Name),
				depth:    t.depth + 1,
				modified: sub.ModifiedTime,
			})
		}

		if logging.Enabled(slog.LevelDebug) {
			l.Debug("folder indexed", "folder", t.id, "path", t.path, "depth", t.depth,
				"images", len(scan.Images), "subfolders", len(scan.Subfolders))
		}
		c.events.Publish(Event{Type: EventCrawlProgress, RootID: idx.RootFolderID, Progress: &Progress{
			RootID:           idx.RootFolderID,
			FoldersProcessed: len(idx.Folders),
			FoldersQueued:    len(queue),
			ImagesFound:      len(idx.Files),
			CurrentPath:      t.path,
		}})
	}
	return added, nil
}

// scan lists a folder's images and subfolders. Nothing is returned unless
// both listings succeed.
func (c *Crawler) scan(ctx context.Context, t crawlTask) (*FolderScan, error) {
	items, err := drive.ListAll(ctx, c.client, t.id, drive.FilterImages, c.limits.MaxFilesPerFolder)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	subs, err := drive.ListAll(ctx, c.client, t.id, drive.FilterFolders, maxSubfolders)
	if err != nil {
		return nil, fmt.Errorf("list subfolders: %w", err)
	}
	subs = lo.UniqBy(lo.Filter(subs, func(it *drive.Item, _ int) bool { return it.IsFolder() }),
		func(it *drive.Item) string { return it.ID })

	images := make([]*index.Image, 0, len(items))
	for _, it := range items {
		if it.IsImage() {
			images = append(images, newImage(it, t.id))
		}
	}

	folder := &index.Folder{
		ID:           t.id,
		Name:         t.name,
		ParentID:     t.parentID,
		Path:         t.path,
		ImageCount:   len(images),
		LastModified: t.modified,
		Children:     lo.Map(subs, func(it *drive.Item, _ int) string { return it.ID }),
	}
	if cover := index.SelectCover(images); cover != nil {
		folder.CoverFileID = cover.ID
		folder.CoverThumbURL = cover.ThumbURL
		folder.LastModified = cover.ModifiedTime
	}
	return &FolderScan{Folder: folder, Images: images, Subfolders: subs}, nil
}

func newImage(it *drive.Item, folderID string) *index.Image {
	view := it.WebViewLink
	if view == "" {
		view = drive.ViewURL(it.ID)
	}
	return &index.Image{
		ID:           it.ID,
		Name:         it.Name,
		FolderID:     folderID,
		MimeType:     it.MimeType,
		ModifiedTime: it.ModifiedTime,
		ThumbURL:     drive.ThumbnailURL(it.ID, drive.DefaultThumbSize),
		ViewURL:      view,
		Size:         it.Size,
	}
}

// pruneChildren drops child ids that are not indexed under the folder.
func pruneChildren(idx *index.Index, folderIDs []string) {
	for _, id := range folderIDs {
		f, ok := idx.Folders[id]
		if !ok {
			continue
		}
		f.Children = slices.DeleteFunc(f.Children, func(childID string) bool {
			child, ok := idx.Folders[childID]
			return !ok || child.ParentID != id
		})
	}
}
