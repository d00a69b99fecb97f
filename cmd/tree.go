package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	wsync "github.com/ghyeongl/warehouse/sync"
)

var (
	treeRefresh bool
	treeDepth   int
)

var treeCmd = &cobra.Command{
	Use:   "tree <rootId>",
	Short: "Display the folder tree of a root",
	Long: `Display the folder tree of a root with image counts. A root without
an index is crawled first.

Example:
  warehouse tree 1AbCdEfGhIjKlMnOp --depth 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck
		return runTree(cmd, a, args[0])
	},
}

func runTree(cmd *cobra.Command, a *app, root string) error {
	res, err := a.svc.Tree(cmd.Context(), root, treeRefresh)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	printTree(w, res.Tree, 0, treeDepth)
	fmt.Fprintf(w, "\n%d folders, %d images, synced %s\n",
		res.Stats.Folders, res.Stats.Images, res.LastSyncTime.Format("2006-01-02 15:04:05"))
	return nil
}

// printTree writes one line per folder, indented by depth. maxDepth <= 0
// prints everything.
func printTree(w io.Writer, node *wsync.TreeNode, depth, maxDepth int) {
	if node == nil {
		return
	}

	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s (%d)\n", indent, node.Name, node.ImageCount)

	if maxDepth > 0 && depth+1 >= maxDepth {
		return
	}
	for _, child := range node.Children {
		printTree(w, child, depth+1, maxDepth)
	}
}

func init() {
	treeCmd.Flags().BoolVar(&treeRefresh, "refresh", false, "reconcile the top level against Drive first")
	treeCmd.Flags().IntVar(&treeDepth, "depth", 0, "levels to print, 0 for all")
	rootCmd.AddCommand(treeCmd)
}
