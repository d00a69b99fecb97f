package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// buildSample returns root -> a -> b with images in a and b.
func buildSample(t *testing.T) *Index {
	t.Helper()
	idx := New("root")
	idx.PutFolder(&Folder{ID: "root", Name: "Root", Path: "Root"})
	idx.PutFolder(&Folder{ID: "a", Name: "A", ParentID: "root", Path: "Root/A"})
	idx.AttachChild("root", "a")
	idx.PutFolder(&Folder{ID: "b", Name: "B", ParentID: "a", Path: "Root/A/B"})
	idx.AttachChild("a", "b")

	idx.PutFile(&Image{ID: "a1", Name: "a1.jpg", FolderID: "a", ModifiedTime: day(1)})
	idx.PutFile(&Image{ID: "a2", Name: "a2.jpg", FolderID: "a", ModifiedTime: day(3)})
	idx.PutFile(&Image{ID: "b1", Name: "b1.png", FolderID: "b", ModifiedTime: day(2)})
	idx.Recompute("a")
	idx.Recompute("b")
	require.NoError(t, idx.Check())
	return idx
}

func TestRecompute_CoverIsNewestImage(t *testing.T) {
	idx := buildSample(t)

	a := idx.Folders["a"]
	assert.Equal(t, 2, a.ImageCount)
	assert.Equal(t, "a2", a.CoverFileID)
	assert.Equal(t, day(3), a.LastModified)

	idx.RemoveFile("a2")
	idx.Recompute("a")
	assert.Equal(t, 1, a.ImageCount)
	assert.Equal(t, "a1", a.CoverFileID)
	assert.Equal(t, day(1), a.LastModified)
}

func TestRecompute_NoImagesKeepsLastModified(t *testing.T) {
	idx := buildSample(t)
	idx.RemoveFile("b1")
	idx.Recompute("b")

	b := idx.Folders["b"]
	assert.Zero(t, b.ImageCount)
	assert.Empty(t, b.CoverFileID)
	assert.Empty(t, b.CoverThumbURL)
	assert.Equal(t, day(2), b.LastModified)
}

func TestSelectCover_FirstWinsTie(t *testing.T) {
	imgs := []*Image{
		{ID: "x", ModifiedTime: day(5)},
		{ID: "y", ModifiedTime: day(5)},
		{ID: "z", ModifiedTime: day(4)},
	}
	assert.Equal(t, "x", SelectCover(imgs).ID)
	assert.Nil(t, SelectCover(nil))
}

func TestRemoveFolder_Cascades(t *testing.T) {
	idx := buildSample(t)

	removed := idx.RemoveFolder("a")

	assert.Len(t, removed.Folders, 2)
	assert.Len(t, removed.Images, 3)
	assert.NotContains(t, idx.Folders, "a")
	assert.NotContains(t, idx.Folders, "b")
	assert.Empty(t, idx.Files)
	assert.NotContains(t, idx.FolderFiles, "a")
	assert.NotContains(t, idx.FolderFiles, "b")
	assert.Empty(t, idx.Folders["root"].Children)
	require.NoError(t, idx.Check())
}

func TestRemoveFolder_SurvivesCycle(t *testing.T) {
	idx := buildSample(t)
	// corrupt: b lists a as a child
	idx.Folders["b"].Children = append(idx.Folders["b"].Children, "a")

	removed := idx.RemoveFolder("a")
	assert.Len(t, removed.Folders, 2)
	assert.Len(t, idx.Folders, 1)
}

func TestPutFile_MovesMembership(t *testing.T) {
	idx := buildSample(t)

	prev := idx.PutFile(&Image{ID: "a1", Name: "a1.jpg", FolderID: "b", ModifiedTime: day(1)})
	require.NotNil(t, prev)
	assert.Equal(t, "a", prev.FolderID)
	assert.Equal(t, []string{"a2"}, idx.FolderFiles["a"])
	assert.Equal(t, []string{"b1", "a1"}, idx.FolderFiles["b"])

	// same folder update does not duplicate membership
	idx.PutFile(&Image{ID: "a1", Name: "renamed.jpg", FolderID: "b", ModifiedTime: day(9)})
	assert.Equal(t, []string{"b1", "a1"}, idx.FolderFiles["b"])
	require.NoError(t, idx.Check())
}

func TestUpdatePaths_Recursive(t *testing.T) {
	idx := buildSample(t)

	idx.Folders["a"].Name = "Renamed"
	idx.UpdatePaths("a")

	assert.Equal(t, "Root/Renamed", idx.Folders["a"].Path)
	assert.Equal(t, "Root/Renamed/B", idx.Folders["b"].Path)
}

func TestMove_ReattachesAndPathsFollow(t *testing.T) {
	idx := buildSample(t)

	idx.Move("b", "root")
	idx.UpdatePaths("b")

	assert.Equal(t, []string{"a", "b"}, idx.Folders["root"].Children)
	assert.Empty(t, idx.Folders["a"].Children)
	assert.Equal(t, "Root/B", idx.Folders["b"].Path)
	require.NoError(t, idx.Check())
}

func TestDepth(t *testing.T) {
	idx := buildSample(t)
	assert.Equal(t, 0, idx.Depth("root"))
	assert.Equal(t, 1, idx.Depth("a"))
	assert.Equal(t, 2, idx.Depth("b"))
	assert.Equal(t, -1, idx.Depth("missing"))
}

func TestCheck_DetectsDanglingChild(t *testing.T) {
	idx := buildSample(t)
	idx.Folders["root"].Children = append(idx.Folders["root"].Children, "ghost")
	assert.ErrorContains(t, idx.Check(), "missing child ghost")
}

func TestWithDefaults(t *testing.T) {
	got := CrawlLimits{MaxFolders: 3}.WithDefaults()
	assert.Equal(t, CrawlLimits{MaxDepth: 10, MaxFolders: 3, MaxFilesPerFolder: 1000}, got)
}
