package sync

import (
	"context"
	"log/slog"

	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/index"
	"github.com/ghyeongl/warehouse/logging"
)

// applier mutates one index with a batch of changes. Folders whose direct
// images changed are collected in dirty and recomputed once at the end.
type applier struct {
	crawler *Crawler
	idx     *index.Index
	res     *SyncResult
	dirty   map[string]struct{}
	log     *slog.Logger
}

// applyChanges applies changes to idx strictly in order. Per-change
// failures land in res.Failures. Only cancellation returns an error, and
// idx must then be discarded.
func applyChanges(ctx context.Context, crawler *Crawler, idx *index.Index, changes []drive.Change, res *SyncResult) error {
	a := &applier{
		crawler: crawler,
		idx:     idx,
		res:     res,
		dirty:   make(map[string]struct{}),
		log:     logging.Sub("sync"),
	}
	for _, ch := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.apply(ctx, ch); err != nil {
			return err
		}
		res.ChangesProcessed++
	}
	for id := range a.dirty {
		idx.Recompute(id)
	}
	return nil
}

func (a *applier) apply(ctx context.Context, ch drive.Change) error {
	if ch.Removed || ch.Item == nil {
		a.remove(ch.ItemID)
		return nil
	}
	if ch.Item.IsFolder() {
		return a.folder(ctx, ch.Item)
	}
	a.file(ch.Item)
	return nil
}

// remove drops a known file or folder. Unknown ids are ignored.
func (a *applier) remove(id string) {
	if img, ok := a.idx.RemoveFile(id); ok {
		a.dirty[img.FolderID] = struct{}{}
		a.res.FilesRemoved++
		a.emit(index.ActionRemoved, index.ItemFile, img.Name, a.filePath(img.FolderID, img.Name))
		return
	}

	f, ok := a.idx.Folders[id]
	if !ok {
		return
	}
	if id == a.idx.RootFolderID {
		a.log.Warn("root removal ignored", "root", id)
		a.res.Failures = append(a.res.Failures, failure("remove folder", id, f.Path, ErrRootRemoval))
		return
	}
	path := f.Path
	rm := a.idx.RemoveFolder(id)
	for _, gone := range rm.Folders {
		delete(a.dirty, gone.ID)
	}
	a.res.FoldersUpdated++
	a.res.FilesRemoved += len(rm.Images)
	a.emit(index.ActionRemoved, index.ItemFolder, f.Name, path)
	a.log.Debug("folder removed", "folder", id, "path", path,
		"folders", len(rm.Folders), "images", len(rm.Images))
}

func (a *applier) folder(ctx context.Context, item *drive.Item) error {
	if item.ID == a.idx.RootFolderID {
		a.renameRoot(item)
		return nil
	}

	parentID, ok := a.knownParent(item)
	if !ok {
		if _, exists := a.idx.Folders[item.ID]; exists {
			// moved out of the tree
			a.remove(item.ID)
			return nil
		}
		// the parent may arrive later in the feed or be found by reconciliation
		a.res.Skipped++
		a.log.Debug("folder skipped, parent not indexed", "folder", item.ID, "name", item.Name, "parents", item.ParentIDs)
		return nil
	}

	if f, exists := a.idx.Folders[item.ID]; exists {
		a.update(f, item, parentID)
		return nil
	}

	added, failures, err := a.crawler.Expand(ctx, a.idx, item, parentID)
	a.res.Failures = append(a.res.Failures, failures...)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		a.log.Info("new folder not indexed", "folder", item.ID, "name", item.Name)
		return nil
	}
	for _, id := range added {
		a.res.FilesAdded += len(a.idx.FolderFiles[id])
	}
	a.res.FoldersUpdated += len(added)
	f := a.idx.Folders[item.ID]
	a.emit(index.ActionAdded, index.ItemFolder, f.Name, f.Path)
	return nil
}

// update applies a rename or move to an indexed folder and rewrites the
// paths of its subtree.
func (a *applier) update(f *index.Folder, item *drive.Item, parentID string) {
	renamed := f.Name != item.Name
	moved := f.ParentID != parentID
	if !renamed && !moved {
		return
	}
	if moved && a.isDescendant(parentID, f.ID) {
		a.res.Failures = append(a.res.Failures, failure("move folder", f.ID, f.Path, ErrCycle))
		return
	}
	f.Name = item.Name
	if moved {
		a.idx.Move(f.ID, parentID)
	}
	a.idx.UpdatePaths(f.ID)
	a.res.FoldersUpdated++
	a.log.Debug("folder updated", "folder", f.ID, "path", f.Path, "renamed", renamed, "moved", moved)
}

func (a *applier) renameRoot(item *drive.Item) {
	root := a.idx.Root()
	if root == nil || root.Name == item.Name {
		return
	}
	root.Name = item.Name
	a.idx.UpdatePaths(root.ID)
	a.res.FoldersUpdated++
}

func (a *applier) file(item *drive.Item) {
	if !item.IsImage() {
		a.remove(item.ID)
		return
	}
	parentID, ok := a.knownParent(item)
	if !ok {
		a.remove(item.ID)
		return
	}

	prev := a.idx.Files[item.ID]
	if prev == nil && len(a.idx.FolderFiles[parentID]) >= a.crawler.Limits().MaxFilesPerFolder {
		a.log.Debug("image over folder limit", "file", item.ID, "folder", parentID)
		return
	}
	a.idx.PutFile(newImage(item, parentID))
	a.dirty[parentID] = struct{}{}
	if prev != nil {
		a.dirty[prev.FolderID] = struct{}{}
		return
	}
	a.res.FilesAdded++
	a.emit(index.ActionAdded, index.ItemFile, item.Name, a.filePath(parentID, item.Name))
}

// knownParent returns the first declared parent that is indexed.
func (a *applier) knownParent(item *drive.Item) (string, bool) {
	for _, id := range item.ParentIDs {
		if _, ok := a.idx.Folders[id]; ok {
			return id, true
		}
	}
	return "", false
}

// isDescendant reports whether id lies in the subtree of ancestorID,
// including ancestorID itself.
func (a *applier) isDescendant(id, ancestorID string) bool {
	visited := make(map[string]struct{})
	for cur := id; cur != ""; {
		if cur == ancestorID {
			return true
		}
		if _, seen := visited[cur]; seen {
			return false
		}
		visited[cur] = struct{}{}
		f, ok := a.idx.Folders[cur]
		if !ok {
			return false
		}
		cur = f.ParentID
	}
	return false
}

func (a *applier) filePath(folderID, name string) string {
	if f, ok := a.idx.Folders[folderID]; ok {
		return index.ChildPath(f.Path, name)
	}
	return name
}

func (a *applier) emit(action index.Action, kind index.ItemType, name, path string) {
	a.res.Events = append(a.res.Events, index.ChangeEvent{
		Timestamp: nowFunc(),
		Action:    action,
		ItemType:  kind,
		Name:      name,
		Path:      path,
	})
}
