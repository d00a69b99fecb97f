package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/warehouse/warehouse"
)

var (
	syncFull bool
	syncAll  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [rootId]",
	Short: "Apply pending Drive changes to stored indexes",
	Long: `Sync one root from the Drive change feed, or with --all every enabled
drive and every stored index. Roots without an index get a full crawl.

Examples:
  warehouse sync 1AbCdEfGhIjKlMnOp
  warehouse sync 1AbCdEfGhIjKlMnOp --full
  warehouse sync --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncAll == (len(args) == 1) {
			return errors.New("give a root id or --all")
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck
		if syncAll {
			return runSyncAll(cmd, a)
		}
		return runSync(cmd, a, args[0], syncFull)
	},
}

func runSync(cmd *cobra.Command, a *app, root string, full bool) error {
	out, err := a.svc.Sync(cmd.Context(), root, full)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if out.Crawl != nil {
		fmt.Fprintf(w, "%s: full crawl, %d folders, %d images\n", a.svc.Name(root), out.Crawl.TotalFolders, out.Crawl.TotalImages)
		return nil
	}
	r := out.Result
	if !r.Success {
		return fmt.Errorf("sync %s: %s", root, r.Error)
	}
	fmt.Fprintf(w, "%s: %d changes, +%d -%d files, %d folders updated\n",
		a.svc.Name(root), r.ChangesProcessed, r.FilesAdded, r.FilesRemoved, r.FoldersUpdated)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  %d folder changes skipped", r.Skipped)
		if rec := out.Reconciled; rec != nil && rec.Root != nil {
			fmt.Fprintf(w, ", reconciled (%d added, %d removed)", len(rec.Root.Added), len(rec.Root.Removed))
		}
		fmt.Fprintln(w)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.ID, f.Error)
	}
	return nil
}

func runSyncAll(cmd *cobra.Command, a *app) error {
	res, err := a.svc.SyncAll(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "No indexes to sync")
		return nil
	}
	printTargets(w, res.Results)
	fmt.Fprintf(w, "%d synced, %d failed\n", res.Synced, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d roots failed", res.Failed, len(res.Results))
	}
	return nil
}

func printTargets(w io.Writer, targets []warehouse.SyncTarget) {
	for _, t := range targets {
		status := "ok"
		if !t.Success {
			status = "FAILED: " + t.Error
		}
		fmt.Fprintf(w, "%-12s %-24s %-11s %4d  %s\n", t.FolderID, t.Name, t.Type, t.Changes, status)
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "recrawl instead of reading the change feed")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every enabled drive and stored index")
	rootCmd.AddCommand(syncCmd)
}
