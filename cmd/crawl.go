package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <rootId>...",
	Short: "Rebuild the index of one or more roots from scratch",
	Long: `Crawl each root folder breadth-first and replace its stored index.

Example:
  warehouse crawl 1AbCdEfGhIjKlMnOp`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck
		return runCrawl(cmd, a, args)
	},
}

func runCrawl(cmd *cobra.Command, a *app, roots []string) error {
	out := cmd.OutOrStdout()
	for _, root := range roots {
		res, err := a.svc.Crawl(cmd.Context(), root)
		if err != nil {
			return fmt.Errorf("crawl %s: %w", root, err)
		}
		fmt.Fprintf(out, "%s: %d folders, %d images", a.svc.Name(root), res.TotalFolders, res.TotalImages)
		if r := res.Report; r != nil {
			if r.FoldersSkipped > 0 {
				fmt.Fprintf(out, ", %d folders skipped", r.FoldersSkipped)
			}
			if r.Truncated {
				fmt.Fprint(out, " (truncated)")
			}
			fmt.Fprintf(out, " in %s", r.Elapsed.Round(time.Millisecond))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}
