package sync

import (
	"slices"
	"time"

	"github.com/maruel/natural"

	"github.com/ghyeongl/warehouse/index"
)

// TreeNode is a folder in the display tree.
type TreeNode struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Path             string      `json:"path"`
	ImageCount       int         `json:"imageCount"` // own images plus all descendants'
	DirectImageCount int         `json:"directImageCount"`
	CoverFileID      string      `json:"coverFileId,omitempty"`
	CoverThumbURL    string      `json:"coverThumbUrl,omitempty"`
	LastModified     time.Time   `json:"lastModified"`
	Children         []*TreeNode `json:"children"`
}

// BuildTree assembles the display tree under rootID. Children are in
// natural name order. A folder without its own cover borrows the most
// recently modified image of its subtree. Nil if rootID is not indexed.
func BuildTree(idx *index.Index, rootID string) *TreeNode {
	node, _ := buildNode(idx, rootID, make(map[string]struct{}))
	return node
}

// buildNode returns the node and the newest image in its subtree.
func buildNode(idx *index.Index, id string, visited map[string]struct{}) (*TreeNode, *index.Image) {
	f, ok := idx.Folders[id]
	if !ok {
		return nil, nil
	}
	if _, seen := visited[id]; seen {
		return nil, nil
	}
	visited[id] = struct{}{}

	node := &TreeNode{
		ID:               f.ID,
		Name:             f.Name,
		Path:             f.Path,
		ImageCount:       f.ImageCount,
		DirectImageCount: f.ImageCount,
		CoverFileID:      f.CoverFileID,
		CoverThumbURL:    f.CoverThumbURL,
		LastModified:     f.LastModified,
		Children:         []*TreeNode{},
	}
	newest := index.SelectCover(idx.Images(id))

	for _, childID := range f.Children {
		child, childNewest := buildNode(idx, childID, visited)
		if child == nil {
			continue
		}
		node.Children = append(node.Children, child)
		node.ImageCount += child.ImageCount
		if childNewest != nil && (newest == nil || childNewest.ModifiedTime.After(newest.ModifiedTime)) {
			newest = childNewest
		}
	}
	slices.SortFunc(node.Children, func(a, b *TreeNode) int {
		switch {
		case natural.Less(a.Name, b.Name):
			return -1
		case natural.Less(b.Name, a.Name):
			return 1
		}
		return 0
	})

	if node.CoverFileID == "" && newest != nil {
		node.CoverFileID = newest.ID
		node.CoverThumbURL = newest.ThumbURL
	}
	return node, newest
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func (n *TreeNode) Walk(fn func(*TreeNode) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
