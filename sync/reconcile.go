package sync

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/index"
	"github.com/ghyeongl/warehouse/logging"
)

// CleanReport summarizes a ghost-folder pass.
type CleanReport struct {
	Checked        int          `json:"checked"`
	Ghosts         []string     `json:"ghosts,omitempty"` // ids removed with their subtrees
	FoldersRemoved int          `json:"foldersRemoved"`
	ImagesRemoved  int          `json:"imagesRemoved"`
	Failures       []ItemResult `json:"failures,omitempty"`
}

// ReconcileReport summarizes a one-level reconciliation under the root.
type ReconcileReport struct {
	Added    []string     `json:"added,omitempty"`
	Updated  []string     `json:"updated,omitempty"`
	Removed  []string     `json:"removed,omitempty"`
	Failures []ItemResult `json:"failures,omitempty"`
}

// Changed reports whether the pass modified the index.
func (r *ReconcileReport) Changed() bool {
	return r != nil && len(r.Added)+len(r.Updated)+len(r.Removed) > 0
}

// Changed reports whether the pass modified the index.
func (r *CleanReport) Changed() bool {
	return r != nil && len(r.Ghosts) > 0
}

type liveListing struct {
	folderID string
	children map[string]struct{}
	err      error
}

// ValidateAndClean compares every folder's cached children with a live
// listing and removes the ones the remote no longer has, along with their
// subtrees. A folder whose own listing fails is removed too, except the
// root. Listings run in batches of drive.DefaultBatchSize and each batch
// finishes before the next starts.
func (c *Crawler) ValidateAndClean(ctx context.Context, idx *index.Index) (*CleanReport, error) {
	l := logging.Sub("reconcile")
	report := &CleanReport{}

	parents := lo.FilterMap(lo.Values(idx.Folders), func(f *index.Folder, _ int) (string, bool) {
		return f.ID, len(f.Children) > 0
	})
	slices.Sort(parents)

	for _, batch := range lo.Chunk(parents, drive.DefaultBatchSize) {
		listings := make([]liveListing, len(batch))
		var g errgroup.Group
		for i, id := range batch {
			g.Go(func() error {
				items, err := drive.ListAll(ctx, c.client, id, drive.FilterFolders, maxSubfolders)
				listings[i] = liveListing{folderID: id, err: err}
				if err == nil {
					listings[i].children = lo.SliceToMap(items, func(it *drive.Item) (string, struct{}) {
						return it.ID, struct{}{}
					})
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return report, err
		}

		for _, live := range listings {
			f, ok := idx.Folders[live.folderID]
			if !ok {
				// removed with an earlier ghost
				continue
			}
			report.Checked++
			if live.err != nil {
				report.Failures = append(report.Failures, failure("validate folder", f.ID, f.Path, live.err))
				if f.ID == idx.RootFolderID {
					l.Warn("root listing failed", "root", f.ID, "err", live.err)
					continue
				}
				l.Info("folder listing failed, removing", "folder", f.ID, "path", f.Path, "err", live.err)
				c.removeGhost(idx, f.ID, report)
				continue
			}
			for _, childID := range slices.Clone(f.Children) {
				if _, exists := live.children[childID]; exists {
					continue
				}
				l.Info("ghost folder removed", "folder", childID, "parent", f.ID)
				c.removeGhost(idx, childID, report)
			}
		}
	}

	l.Info("validation complete", "root", idx.RootFolderID, "checked", report.Checked,
		"ghosts", len(report.Ghosts), "failures", len(report.Failures))
	return report, nil
}

func (c *Crawler) removeGhost(idx *index.Index, id string, report *CleanReport) {
	rm := idx.RemoveFolder(id)
	if len(rm.Folders) == 0 {
		return
	}
	report.Ghosts = append(report.Ghosts, id)
	report.FoldersRemoved += len(rm.Folders)
	report.ImagesRemoved += len(rm.Images)
}

// ReconcileRootChildren brings the root's direct subfolders in line with a
// live listing. Surviving folders get their names and paths refreshed, new
// ones are indexed with their subtrees and vanished ones are removed.
func (c *Crawler) ReconcileRootChildren(ctx context.Context, idx *index.Index) (*ReconcileReport, error) {
	l := logging.Sub("reconcile")
	root := idx.Root()
	if root == nil {
		return nil, fmt.Errorf("reconcile %s: %w", idx.RootFolderID, ErrNoIndex)
	}

	live, err := drive.ListAll(ctx, c.client, root.ID, drive.FilterFolders, maxSubfolders)
	if err != nil {
		return nil, fmt.Errorf("list root children: %w", err)
	}

	report := &ReconcileReport{}
	liveIDs := make(map[string]struct{}, len(live))
	for _, item := range live {
		if !item.IsFolder() {
			continue
		}
		liveIDs[item.ID] = struct{}{}

		f, exists := idx.Folders[item.ID]
		if !exists {
			added, failures, err := c.Expand(ctx, idx, item, root.ID)
			report.Failures = append(report.Failures, failures...)
			if err != nil {
				return report, err
			}
			if len(added) > 0 {
				report.Added = append(report.Added, item.ID)
			}
			continue
		}
		if f.Name == item.Name && f.ParentID == root.ID {
			continue
		}
		f.Name = item.Name
		idx.Move(f.ID, root.ID)
		idx.UpdatePaths(f.ID)
		report.Updated = append(report.Updated, f.ID)
	}

	for _, childID := range slices.Clone(root.Children) {
		if _, ok := liveIDs[childID]; ok {
			continue
		}
		idx.RemoveFolder(childID)
		report.Removed = append(report.Removed, childID)
	}

	l.Info("root reconciled", "root", root.ID, "added", len(report.Added),
		"updated", len(report.Updated), "removed", len(report.Removed))
	return report, nil
}
