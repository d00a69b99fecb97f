// Package drivetest provides an in-memory drive.Client for tests.
package drivetest

import (
	"context"
	"slices"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/ghyeongl/warehouse/drive"
)

// Operation names accepted by Fail and Calls.
const (
	OpGetMetadata     = "GetMetadata"
	OpListChildren    = "ListChildren"
	OpGetChangeCursor = "GetChangeCursor"
	OpListChanges     = "ListChanges"
)

// Fake is a mutable remote tree with a change feed. Every mutation made
// through its methods is appended to the feed unless stated otherwise.
type Fake struct {
	mu       gosync.Mutex
	items    map[string]*drive.Item
	changes  []drive.Change
	failures map[string]error
	calls    map[string]int
}

var _ drive.Client = (*Fake)(nil)

// New returns an empty remote.
func New() *Fake {
	return &Fake{
		items:    make(map[string]*drive.Item),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// AddFolder creates or replaces a folder.
func (f *Fake) AddFolder(id, name, parentID string, mod time.Time) {
	f.Put(drive.Item{ID: id, Name: name, Kind: drive.KindFolder, MimeType: drive.FolderMimeType, ModifiedTime: mod, ParentIDs: parents(parentID)})
}

// AddImage creates or replaces a JPEG image.
func (f *Fake) AddImage(id, name, parentID string, mod time.Time) {
	f.AddFile(id, name, "image/jpeg", parentID, mod)
}

// AddFile creates or replaces a file with the given MIME type.
func (f *Fake) AddFile(id, name, mimeType, parentID string, mod time.Time) {
	f.Put(drive.Item{ID: id, Name: name, Kind: drive.KindFile, MimeType: mimeType, ModifiedTime: mod, ParentIDs: parents(parentID), Size: int64(len(name)) * 1024})
}

// Put stores a copy of item and records an update change.
func (f *Fake) Put(item drive.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := cloneItem(&item)
	f.items[item.ID] = stored
	f.changes = append(f.changes, drive.Change{ItemID: item.ID, Item: cloneItem(stored)})
}

// Plant stores a copy of item without recording a change, as if its
// change event had been lost.
func (f *Fake) Plant(item drive.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = cloneItem(&item)
}

// Rename changes an item's name.
func (f *Fake) Rename(id, name string) {
	f.update(id, func(it *drive.Item) { it.Name = name })
}

// Move reparents an item.
func (f *Fake) Move(id, parentID string) {
	f.update(id, func(it *drive.Item) { it.ParentIDs = parents(parentID) })
}

// SetMime changes a file's MIME type.
func (f *Fake) SetMime(id, mimeType string) {
	f.update(id, func(it *drive.Item) { it.MimeType = mimeType })
}

func (f *Fake) update(id string, fn func(*drive.Item)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return
	}
	fn(it)
	f.changes = append(f.changes, drive.Change{ItemID: id, Item: cloneItem(it)})
}

// Remove deletes one item and records a removal. Descendants stay in the
// store but become unreachable.
func (f *Fake) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	f.changes = append(f.changes, drive.Change{ItemID: id, Removed: true})
}

// Hide deletes an item without recording a change, which is how drift
// between the index and the remote appears.
func (f *Fake) Hide(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
}

// Append adds a raw change to the feed without touching the tree.
func (f *Fake) Append(changes ...drive.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, changes...)
}

// Fail makes op fail with err for id. An empty id matches every call.
// A nil err clears the failure.
func (f *Fake) Fail(op, id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := op + ":" + id
	if err == nil {
		delete(f.failures, key)
		return
	}
	f.failures[key] = err
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Cursor returns the current end of the change feed.
func (f *Fake) Cursor() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strconv.Itoa(len(f.changes))
}

func (f *Fake) enter(op, id string) error {
	f.calls[op]++
	if err, ok := f.failures[op+":"+id]; ok {
		return err
	}
	if err, ok := f.failures[op+":"]; ok {
		return err
	}
	return nil
}

// GetMetadata implements drive.Client.
func (f *Fake) GetMetadata(_ context.Context, id string) (*drive.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpGetMetadata, id); err != nil {
		return nil, err
	}
	it, ok := f.items[id]
	if !ok {
		return nil, drive.Errorf(drive.ErrNotFound, "get metadata", id)
	}
	return cloneItem(it), nil
}

// ListChildren implements drive.Client. Children are ordered by name and
// the page token is a decimal offset.
func (f *Fake) ListChildren(_ context.Context, folderID string, filter drive.Filter, pageToken string, pageSize int) (*drive.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpListChildren, folderID); err != nil {
		return nil, err
	}
	parent, ok := f.items[folderID]
	if !ok || !parent.IsFolder() {
		return nil, drive.Errorf(drive.ErrNotFound, "list children", folderID)
	}

	var matched []*drive.Item
	for _, it := range f.items {
		if !slices.Contains(it.ParentIDs, folderID) {
			continue
		}
		switch filter {
		case drive.FilterFolders:
			if !it.IsFolder() {
				continue
			}
		case drive.FilterImages:
			if !it.IsImage() {
				continue
			}
		}
		matched = append(matched, it)
	}
	slices.SortFunc(matched, func(a, b *drive.Item) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, drive.Errorf(drive.ErrInvalidInput, "list children", pageToken)
		}
		start = min(n, len(matched))
	}
	if pageSize <= 0 {
		pageSize = drive.DefaultPageSize
	}
	end := min(start+pageSize, len(matched))

	page := &drive.Page{}
	for _, it := range matched[start:end] {
		page.Items = append(page.Items, cloneItem(it))
	}
	if end < len(matched) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetChangeCursor implements drive.Client.
func (f *Fake) GetChangeCursor(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpGetChangeCursor, ""); err != nil {
		return "", err
	}
	return strconv.Itoa(len(f.changes)), nil
}

// ListChanges implements drive.Client.
func (f *Fake) ListChanges(_ context.Context, cursor string, pageSize int) (*drive.ChangePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpListChanges, cursor); err != nil {
		return nil, err
	}
	start, err := strconv.Atoi(cursor)
	if err != nil || start < 0 {
		return nil, drive.Errorf(drive.ErrInvalidInput, "list changes", cursor)
	}
	start = min(start, len(f.changes))
	if pageSize <= 0 {
		pageSize = drive.DefaultPageSize
	}
	end := min(start+pageSize, len(f.changes))

	page := &drive.ChangePage{}
	for _, ch := range f.changes[start:end] {
		c := ch
		c.Item = cloneItem(ch.Item)
		page.Changes = append(page.Changes, c)
	}
	if end < len(f.changes) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		page.NewCursor = strconv.Itoa(end)
	}
	return page, nil
}

func parents(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

func cloneItem(it *drive.Item) *drive.Item {
	if it == nil {
		return nil
	}
	c := *it
	c.ParentIDs = slices.Clone(it.ParentIDs)
	return &c
}
