package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/drive/drivetest"
	"github.com/ghyeongl/warehouse/index"
)

func crawlSample(t *testing.T) *index.Index {
	t.Helper()
	remote := drivetest.New()
	sampleRemote(remote)
	idx, _, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	return idx
}

func TestBuildTree_AggregatesCounts(t *testing.T) {
	tree := BuildTree(crawlSample(t), rootID)
	require.NotNil(t, tree)

	assert.Equal(t, 3, tree.ImageCount)
	assert.Equal(t, 0, tree.DirectImageCount)
	require.Len(t, tree.Children, 2)

	a, b := tree.Children[0], tree.Children[1]
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, 2, a.ImageCount)
	assert.Equal(t, "B", b.Name)
	assert.Equal(t, 1, b.ImageCount)
	assert.Equal(t, 0, b.DirectImageCount)
	require.Len(t, b.Children, 1)
	assert.Equal(t, "Root/B/C", b.Children[0].Path)
}

func TestBuildTree_FallbackCover(t *testing.T) {
	tree := BuildTree(crawlSample(t), rootID)

	// no images of its own: newest image anywhere below
	assert.Equal(t, imgA3, tree.CoverFileID)
	b := tree.Children[1]
	assert.Equal(t, imgC2, b.CoverFileID)
	assert.NotEmpty(t, b.CoverThumbURL)
	// own cover wins
	assert.Equal(t, imgA3, tree.Children[0].CoverFileID)
}

func TestBuildTree_EmptySubtreeHasNoCover(t *testing.T) {
	idx := index.New(rootID)
	idx.PutFolder(&index.Folder{ID: rootID, Name: "Root", Path: "Root", Children: []string{folderA}})
	idx.PutFolder(&index.Folder{ID: folderA, Name: "A", ParentID: rootID, Path: "Root/A"})

	tree := BuildTree(idx, rootID)
	assert.Empty(t, tree.CoverFileID)
	assert.Zero(t, tree.ImageCount)
}

func TestBuildTree_NaturalOrder(t *testing.T) {
	idx := index.New(rootID)
	root := &index.Folder{ID: rootID, Name: "Root", Path: "Root"}
	idx.PutFolder(root)
	for _, f := range []struct{ id, name string }{
		{"folder0010", "Day 10"},
		{"folder0002", "Day 2"},
		{"folder0001", "Day 1"},
	} {
		idx.PutFolder(&index.Folder{ID: f.id, Name: f.name, ParentID: rootID, Path: "Root/" + f.name})
		idx.AttachChild(rootID, f.id)
	}

	tree := BuildTree(idx, rootID)
	var names []string
	for _, c := range tree.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Day 1", "Day 2", "Day 10"}, names)
}

func TestBuildTree_CycleTerminates(t *testing.T) {
	idx := index.New(rootID)
	idx.PutFolder(&index.Folder{ID: rootID, Name: "Root", Children: []string{folderA}})
	idx.PutFolder(&index.Folder{ID: folderA, Name: "A", ParentID: rootID, Children: []string{rootID}})

	tree := BuildTree(idx, rootID)
	require.Len(t, tree.Children, 1)
	assert.Empty(t, tree.Children[0].Children)
}

func TestBuildTree_MissingRoot(t *testing.T) {
	assert.Nil(t, BuildTree(index.New(rootID), rootID))
}

func TestTreeNode_Walk(t *testing.T) {
	tree := BuildTree(crawlSample(t), rootID)

	var visited []string
	tree.Walk(func(n *TreeNode) bool {
		visited = append(visited, n.ID)
		return n.ID != folderB
	})
	assert.Equal(t, []string{rootID, folderA, folderB}, visited)
}
