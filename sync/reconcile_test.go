package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/drive/drivetest"
	"github.com/ghyeongl/warehouse/index"
)

func setupReconcile(t *testing.T, build func(r *drivetest.Fake)) (*drivetest.Fake, *Crawler, *index.Index) {
	t.Helper()
	remote := drivetest.New()
	build(remote)
	c := NewCrawler(remote, index.CrawlLimits{}, nil)
	idx, _, err := c.Crawl(context.Background(), rootID)
	require.NoError(t, err)
	return remote, c, idx
}

func TestValidateAndClean_PrunesGhostSubtree(t *testing.T) {
	remote, c, idx := setupReconcile(t, sampleRemote)

	remote.Hide(folderB)
	report, err := c.ValidateAndClean(context.Background(), idx)
	require.NoError(t, err)
	require.NoError(t, idx.Check())

	assert.Equal(t, []string{folderB}, report.Ghosts)
	assert.Equal(t, 2, report.FoldersRemoved)
	assert.Equal(t, 1, report.ImagesRemoved)
	assert.NotContains(t, idx.Folders, folderC)
	assert.NotContains(t, idx.Files, imgC2)
	assert.Equal(t, []string{folderA}, idx.Root().Children)
	assert.True(t, report.Changed())
}

func TestValidateAndClean_NestedGhost(t *testing.T) {
	remote, c, idx := setupReconcile(t, sampleRemote)

	remote.Hide(folderC)
	report, err := c.ValidateAndClean(context.Background(), idx)
	require.NoError(t, err)

	assert.Equal(t, []string{folderC}, report.Ghosts)
	assert.Contains(t, idx.Folders, folderB)
	assert.Empty(t, idx.Folders[folderB].Children)
	assert.Empty(t, report.Failures)
}

func TestValidateAndClean_NothingToDo(t *testing.T) {
	_, c, idx := setupReconcile(t, sampleRemote)

	report, err := c.ValidateAndClean(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.False(t, report.Changed())
	assert.Len(t, idx.Folders, 4)
}

func TestValidateAndClean_RootListingFailureKeepsRoot(t *testing.T) {
	remote, c, idx := setupReconcile(t, sampleRemote)

	remote.Fail(drivetest.OpListChildren, rootID, drive.Errorf(drive.ErrTransient, "list children", rootID))
	report, err := c.ValidateAndClean(context.Background(), idx)
	require.NoError(t, err)

	assert.Len(t, idx.Folders, 4)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, rootID, report.Failures[0].ID)
}

func TestValidateAndClean_FailingFolderIsGhost(t *testing.T) {
	remote, c, idx := setupReconcile(t, sampleRemote)

	remote.Fail(drivetest.OpListChildren, folderB, drive.Errorf(drive.ErrForbidden, "list children", folderB))
	report, err := c.ValidateAndClean(context.Background(), idx)
	require.NoError(t, err)

	assert.NotContains(t, idx.Folders, folderB)
	assert.NotContains(t, idx.Folders, folderC)
	assert.Equal(t, []string{folderB}, report.Ghosts)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, drive.ErrForbidden)
}

func TestValidateAndClean_ManyBatches(t *testing.T) {
	remote, c, idx := setupReconcile(t, func(r *drivetest.Fake) {
		r.AddFolder(rootID, "Root", "", day1)
		for i := range 12 {
			parent := fmt.Sprintf("parent%04d", i)
			r.AddFolder(parent, fmt.Sprintf("p%02d", i), rootID, day1)
			r.AddFolder(fmt.Sprintf("child%05d", i), "c", parent, day1)
		}
	})

	remote.Hide("child00007")
	report, err := c.ValidateAndClean(context.Background(), idx)
	require.NoError(t, err)

	assert.Equal(t, 13, report.Checked)
	assert.Equal(t, []string{"child00007"}, report.Ghosts)
	assert.Len(t, idx.Folders, 24)
}

func TestReconcileRootChildren(t *testing.T) {
	remote, c, idx := setupReconcile(t, sampleRemote)

	remote.Rename(folderA, "Albums")
	remote.Hide(folderB)
	remote.AddFolder(folderD, "D", rootID, day1)
	remote.AddImage("imageD0001", "d1.jpg", folderD, day2)

	report, err := c.ReconcileRootChildren(context.Background(), idx)
	require.NoError(t, err)
	require.NoError(t, idx.Check())

	assert.Equal(t, []string{folderD}, report.Added)
	assert.Equal(t, []string{folderA}, report.Updated)
	assert.Equal(t, []string{folderB}, report.Removed)
	assert.Equal(t, "Root/Albums", idx.Folders[folderA].Path)
	assert.Equal(t, 1, idx.Folders[folderD].ImageCount)
	assert.NotContains(t, idx.Folders, folderC)
	assert.ElementsMatch(t, []string{folderA, folderD}, idx.Root().Children)
}

func TestReconcileRootChildren_ListingFails(t *testing.T) {
	remote, c, idx := setupReconcile(t, sampleRemote)

	remote.Fail(drivetest.OpListChildren, rootID, drive.Errorf(drive.ErrRateLimited, "list children", rootID))
	_, err := c.ReconcileRootChildren(context.Background(), idx)
	assert.ErrorIs(t, err, drive.ErrRateLimited)
	assert.Len(t, idx.Folders, 4)
}
