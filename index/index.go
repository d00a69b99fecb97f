package index

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// New returns an empty index anchored at rootID.
func New(rootID string) *Index {
	return &Index{
		RootFolderID: rootID,
		Folders:      make(map[string]*Folder),
		Files:        make(map[string]*Image),
		FolderFiles:  make(map[string][]string),
	}
}

// Normalize allocates maps that a decoded index may be missing.
func (idx *Index) Normalize() {
	if idx.Folders == nil {
		idx.Folders = make(map[string]*Folder)
	}
	if idx.Files == nil {
		idx.Files = make(map[string]*Image)
	}
	if idx.FolderFiles == nil {
		idx.FolderFiles = make(map[string][]string)
	}
}

// Root returns the root folder, or nil if it is not indexed.
func (idx *Index) Root() *Folder {
	return idx.Folders[idx.RootFolderID]
}

// Stats counts indexed folders and images.
func (idx *Index) Stats() Stats {
	return Stats{Folders: len(idx.Folders), Images: len(idx.Files)}
}

// ChildPath joins a parent path and a name.
func ChildPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

// PutFolder stores f, replacing any folder with the same id. It does not
// touch the parent's Children.
func (idx *Index) PutFolder(f *Folder) {
	if f.Children == nil {
		f.Children = []string{}
	}
	idx.Folders[f.ID] = f
}

// AttachChild appends childID to the parent's Children once.
func (idx *Index) AttachChild(parentID, childID string) {
	parent, ok := idx.Folders[parentID]
	if !ok || slices.Contains(parent.Children, childID) {
		return
	}
	parent.Children = append(parent.Children, childID)
}

// DetachChild removes childID from the parent's Children.
func (idx *Index) DetachChild(parentID, childID string) {
	parent, ok := idx.Folders[parentID]
	if !ok {
		return
	}
	parent.Children = lo.Without(parent.Children, childID)
}

// PutFile upserts img and keeps FolderFiles in step with img.FolderID.
// It returns the previous record, or nil if the file is new.
func (idx *Index) PutFile(img *Image) *Image {
	prev := idx.Files[img.ID]
	if prev != nil && prev.FolderID != img.FolderID {
		idx.FolderFiles[prev.FolderID] = lo.Without(idx.FolderFiles[prev.FolderID], img.ID)
	}
	if prev == nil || prev.FolderID != img.FolderID {
		idx.FolderFiles[img.FolderID] = append(idx.FolderFiles[img.FolderID], img.ID)
	}
	idx.Files[img.ID] = img
	return prev
}

// RemoveFile deletes a file record and its membership entry.
func (idx *Index) RemoveFile(id string) (*Image, bool) {
	img, ok := idx.Files[id]
	if !ok {
		return nil, false
	}
	delete(idx.Files, id)
	idx.FolderFiles[img.FolderID] = lo.Without(idx.FolderFiles[img.FolderID], id)
	return img, true
}

// Removal lists what a cascading folder removal deleted.
type Removal struct {
	Folders []*Folder
	Images  []*Image
}

// RemoveFolder deletes the folder, every descendant folder and all their
// images, then detaches the folder from its parent.
func (idx *Index) RemoveFolder(id string) Removal {
	var out Removal
	top, ok := idx.Folders[id]
	if !ok {
		return out
	}

	visited := make(map[string]struct{})
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[cur]; seen {
			continue
		}
		visited[cur] = struct{}{}

		f, ok := idx.Folders[cur]
		if !ok {
			continue
		}
		stack = append(stack, f.Children...)

		for _, fileID := range idx.FolderFiles[cur] {
			if img, ok := idx.Files[fileID]; ok {
				out.Images = append(out.Images, img)
				delete(idx.Files, fileID)
			}
		}
		delete(idx.FolderFiles, cur)
		delete(idx.Folders, cur)
		out.Folders = append(out.Folders, f)
	}

	if top.ParentID != "" {
		idx.DetachChild(top.ParentID, id)
	}
	return out
}

// Move reparents a folder. Paths are not recomputed; call UpdatePaths.
func (idx *Index) Move(id, newParentID string) {
	f, ok := idx.Folders[id]
	if !ok || f.ParentID == newParentID {
		return
	}
	if f.ParentID != "" {
		idx.DetachChild(f.ParentID, id)
	}
	f.ParentID = newParentID
	idx.AttachChild(newParentID, id)
}

// UpdatePaths sets the folder's path from its parent's path and its name,
// then does the same for every descendant.
func (idx *Index) UpdatePaths(id string) {
	f, ok := idx.Folders[id]
	if !ok {
		return
	}
	if parent, ok := idx.Folders[f.ParentID]; ok {
		f.Path = ChildPath(parent.Path, f.Name)
	} else {
		f.Path = f.Name
	}

	visited := map[string]struct{}{id: {}}
	queue := []*Folder{f}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, childID := range cur.Children {
			if _, seen := visited[childID]; seen {
				continue
			}
			visited[childID] = struct{}{}
			child, ok := idx.Folders[childID]
			if !ok {
				continue
			}
			child.Path = ChildPath(cur.Path, child.Name)
			queue = append(queue, child)
		}
	}
}

// Depth is the number of parent hops from the root. Unreachable folders
// report -1.
func (idx *Index) Depth(id string) int {
	visited := make(map[string]struct{})
	depth := 0
	for cur := id; cur != idx.RootFolderID; depth++ {
		if _, seen := visited[cur]; seen {
			return -1
		}
		visited[cur] = struct{}{}
		f, ok := idx.Folders[cur]
		if !ok || f.ParentID == "" {
			return -1
		}
		cur = f.ParentID
	}
	return depth
}

// Images returns the folder's direct images in membership order.
func (idx *Index) Images(folderID string) []*Image {
	ids := idx.FolderFiles[folderID]
	out := make([]*Image, 0, len(ids))
	for _, id := range ids {
		if img, ok := idx.Files[id]; ok {
			out = append(out, img)
		}
	}
	return out
}

// SelectCover returns the most recently modified image. The first one
// wins ties. Nil when there are no images.
func SelectCover(images []*Image) *Image {
	var cover *Image
	for _, img := range images {
		if cover == nil || img.ModifiedTime.After(cover.ModifiedTime) {
			cover = img
		}
	}
	return cover
}

// Recompute refreshes ImageCount, the cover and LastModified from the
// folder's direct images. A folder without images keeps its LastModified.
func (idx *Index) Recompute(folderID string) {
	f, ok := idx.Folders[folderID]
	if !ok {
		return
	}
	images := idx.Images(folderID)
	f.ImageCount = len(images)
	cover := SelectCover(images)
	if cover == nil {
		f.CoverFileID = ""
		f.CoverThumbURL = ""
		return
	}
	f.CoverFileID = cover.ID
	f.CoverThumbURL = cover.ThumbURL
	f.LastModified = cover.ModifiedTime
}

// Check verifies the arena invariants and returns the first violation.
func (idx *Index) Check() error {
	if _, ok := idx.Folders[idx.RootFolderID]; !ok && len(idx.Folders) > 0 {
		return fmt.Errorf("root %s not indexed", idx.RootFolderID)
	}
	for id, f := range idx.Folders {
		if id != f.ID {
			return fmt.Errorf("folder key %s holds id %s", id, f.ID)
		}
		for _, childID := range f.Children {
			child, ok := idx.Folders[childID]
			if !ok {
				return fmt.Errorf("folder %s lists missing child %s", id, childID)
			}
			if child.ParentID != id {
				return fmt.Errorf("child %s of %s has parent %s", childID, id, child.ParentID)
			}
		}
		if id != idx.RootFolderID && idx.Depth(id) < 0 {
			return fmt.Errorf("folder %s unreachable from root", id)
		}
	}
	for folderID, ids := range idx.FolderFiles {
		if _, ok := idx.Folders[folderID]; !ok {
			return fmt.Errorf("file list for missing folder %s", folderID)
		}
		for _, fileID := range ids {
			img, ok := idx.Files[fileID]
			if !ok {
				return fmt.Errorf("folder %s lists missing file %s", folderID, fileID)
			}
			if img.FolderID != folderID {
				return fmt.Errorf("file %s listed under %s but belongs to %s", fileID, folderID, img.FolderID)
			}
		}
	}
	for id, img := range idx.Files {
		if !slices.Contains(idx.FolderFiles[img.FolderID], id) {
			return fmt.Errorf("file %s missing from folder %s", id, img.FolderID)
		}
	}
	return nil
}
