package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/drive/drivetest"
	"github.com/ghyeongl/warehouse/index"
)

func TestCrawl_RootWithOneFolder(t *testing.T) {
	remote := drivetest.New()
	remote.AddFolder(rootID, "Root", "", day1)
	remote.AddFolder(folderA, "A", rootID, day1)
	remote.AddImage(imgA1, "a1.jpg", folderA, day1)
	remote.AddImage(imgA3, "a3.jpg", folderA, day3)

	idx, report, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	require.NoError(t, idx.Check())

	assert.Len(t, idx.Folders, 2)
	assert.Len(t, idx.Files, 2)
	a := idx.Folders[folderA]
	assert.Equal(t, 2, a.ImageCount)
	assert.Equal(t, imgA3, a.CoverFileID)
	assert.Equal(t, drive.ThumbnailURL(imgA3, drive.DefaultThumbSize), a.CoverThumbURL)
	assert.Equal(t, day3, a.LastModified)
	assert.Equal(t, "Root/A", a.Path)
	assert.Equal(t, rootID, a.ParentID)

	root := idx.Root()
	assert.Equal(t, "Root", root.Path)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, 0, root.ImageCount)
	assert.Empty(t, root.CoverFileID)
	assert.Equal(t, []string{folderA}, root.Children)

	assert.Equal(t, remote.Cursor(), idx.ChangeCursor)
	assert.True(t, report.CursorAvailable)
	assert.Equal(t, 2, report.FoldersIndexed)
	assert.Equal(t, 2, report.ImagesIndexed)
	assert.False(t, idx.LastFullCrawlTime.IsZero())
	assert.Equal(t, idx.LastFullCrawlTime, idx.LastSyncTime)
}

func TestCrawl_RejectsBadInputBeforeListing(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	c := NewCrawler(remote, index.CrawlLimits{}, nil)

	_, _, err := c.Crawl(context.Background(), "bad id!")
	assert.ErrorIs(t, err, drive.ErrInvalidInput)
	assert.Zero(t, remote.Calls(drivetest.OpGetMetadata))

	_, _, err = c.Crawl(context.Background(), imgA1)
	assert.ErrorIs(t, err, drive.ErrNotAFolder)
	assert.Zero(t, remote.Calls(drivetest.OpListChildren))

	_, _, err = c.Crawl(context.Background(), "missing0001")
	assert.ErrorIs(t, err, drive.ErrNotFound)
}

func TestCrawl_DepthTruncates(t *testing.T) {
	remote := drivetest.New()
	remote.AddFolder(rootID, "Root", "", day1)
	parent := rootID
	for i := 1; i <= 20; i++ {
		id := fmt.Sprintf("depth%05d", i)
		remote.AddFolder(id, fmt.Sprintf("d%d", i), parent, day1)
		parent = id
	}

	idx, report, err := NewCrawler(remote, index.CrawlLimits{MaxDepth: 10}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	require.NoError(t, idx.Check())

	assert.Len(t, idx.Folders, 11)
	assert.Contains(t, idx.Folders, "depth00010")
	assert.NotContains(t, idx.Folders, "depth00011")
	assert.Empty(t, idx.Folders["depth00010"].Children)
	assert.Equal(t, 1, report.FoldersSkipped)
	assert.False(t, report.Truncated)
}

func TestCrawl_FolderLimitTruncates(t *testing.T) {
	remote := drivetest.New()
	remote.AddFolder(rootID, "Root", "", day1)
	for i := range 5 {
		remote.AddFolder(fmt.Sprintf("child%05d", i), fmt.Sprintf("c%d", i), rootID, day1)
	}

	idx, report, err := NewCrawler(remote, index.CrawlLimits{MaxFolders: 3}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	require.NoError(t, idx.Check())

	assert.Len(t, idx.Folders, 3)
	assert.Len(t, idx.Root().Children, 2)
	assert.True(t, report.Truncated)
	assert.Equal(t, 3, report.FoldersSkipped)
}

func TestCrawl_FileLimitPerFolder(t *testing.T) {
	remote := drivetest.New()
	remote.AddFolder(rootID, "Root", "", day1)
	for i := range 7 {
		remote.AddImage(fmt.Sprintf("image%05d", i), fmt.Sprintf("%d.jpg", i), rootID, day1)
	}

	idx, _, err := NewCrawler(remote, index.CrawlLimits{MaxFilesPerFolder: 4}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	assert.Len(t, idx.Files, 4)
	assert.Equal(t, 4, idx.Root().ImageCount)
}

func TestCrawl_SkipsNonImages(t *testing.T) {
	remote := drivetest.New()
	remote.AddFolder(rootID, "Root", "", day1)
	remote.AddImage(imgA1, "a1.jpg", rootID, day1)
	remote.AddFile("document01", "notes.pdf", "application/pdf", rootID, day3)

	idx, _, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	assert.Len(t, idx.Files, 1)
	assert.Equal(t, imgA1, idx.Root().CoverFileID)
}

func TestCrawl_FolderFailureIsContained(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	remote.Fail(drivetest.OpListChildren, folderB, drive.Errorf(drive.ErrForbidden, "list children", folderB))

	idx, report, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	require.NoError(t, idx.Check())

	assert.Contains(t, idx.Folders, folderA)
	assert.NotContains(t, idx.Folders, folderB)
	assert.NotContains(t, idx.Folders, folderC)
	assert.Equal(t, []string{folderA}, idx.Root().Children)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, folderB, report.Failures[0].ID)
	assert.Equal(t, "Root/B", report.Failures[0].Path)
	assert.ErrorIs(t, report.Failures[0].Err, drive.ErrForbidden)
}

func TestCrawl_RootListingFailureFails(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	remote.Fail(drivetest.OpListChildren, rootID, drive.Errorf(drive.ErrTransient, "list children", rootID))

	idx, _, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(context.Background(), rootID)
	assert.Error(t, err)
	assert.Nil(t, idx)
}

func TestCrawl_CursorFailureKeepsIndex(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	remote.Fail(drivetest.OpGetChangeCursor, "", errors.New("boom"))

	idx, report, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	assert.Empty(t, idx.ChangeCursor)
	assert.False(t, report.CursorAvailable)
	assert.Len(t, report.Failures, 1)
	assert.Len(t, idx.Folders, 4)
}

func TestCrawl_Idempotent(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	c := NewCrawler(remote, index.CrawlLimits{}, nil)

	first, _, err := c.Crawl(context.Background(), rootID)
	require.NoError(t, err)
	second, _, err := c.Crawl(context.Background(), rootID)
	require.NoError(t, err)

	assert.Equal(t, first.Folders, second.Folders)
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, first.FolderFiles, second.FolderFiles)
	assert.Equal(t, first.ChangeCursor, second.ChangeCursor)
}

func TestCrawl_VisitsSharedFolderOnce(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	remote.Put(drive.Item{ID: folderD, Name: "D", Kind: drive.KindFolder, MimeType: drive.FolderMimeType,
		ModifiedTime: day1, ParentIDs: []string{folderA, folderB}})

	idx, _, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(context.Background(), rootID)
	require.NoError(t, err)
	require.NoError(t, idx.Check())

	d := idx.Folders[folderD]
	require.NotNil(t, d)
	assert.Equal(t, folderA, d.ParentID)
	assert.Contains(t, idx.Folders[folderA].Children, folderD)
	assert.NotContains(t, idx.Folders[folderB].Children, folderD)
}

func TestCrawl_PublishesProgress(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	_, _, err := NewCrawler(remote, index.CrawlLimits{}, bus).Crawl(context.Background(), rootID)
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, EventCrawlProgress, ev.Type)
		assert.Equal(t, rootID, ev.RootID)
	}
	last := events[len(events)-1].Progress
	assert.True(t, last.Done)
	assert.Equal(t, 4, last.FoldersProcessed)
	assert.Equal(t, 3, last.ImagesFound)
	assert.Equal(t, "Root", events[0].Progress.CurrentPath)
}

func TestCrawl_Canceled(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewCrawler(remote, index.CrawlLimits{}, nil).Crawl(ctx, rootID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCrawlFolder(t *testing.T) {
	remote := drivetest.New()
	sampleRemote(remote)

	scan, err := NewCrawler(remote, index.CrawlLimits{}, nil).CrawlFolder(context.Background(), folderA, "Root")
	require.NoError(t, err)
	assert.Equal(t, "Root/A", scan.Folder.Path)
	assert.Equal(t, rootID, scan.Folder.ParentID)
	assert.Equal(t, imgA3, scan.Folder.CoverFileID)
	assert.Len(t, scan.Images, 2)
	assert.Empty(t, scan.Subfolders)

	scan, err = NewCrawler(remote, index.CrawlLimits{}, nil).CrawlFolder(context.Background(), folderB, "Root")
	require.NoError(t, err)
	assert.Empty(t, scan.Folder.CoverFileID)
	assert.Equal(t, []string{folderC}, scan.Folder.Children)
}
