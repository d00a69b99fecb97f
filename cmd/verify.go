package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/warehouse/drive"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [rootId]...",
	Short: "Check Drive access and stored index consistency",
	Long: `Check that each root is a readable Drive folder and that its stored
index is internally consistent. Without arguments every enabled drive
and stored index is checked.

Example:
  warehouse verify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck
		return runVerify(cmd, a, args)
	},
}

func runVerify(cmd *cobra.Command, a *app, roots []string) error {
	ctx := cmd.Context()
	if len(roots) == 0 {
		var err error
		if roots, err = a.svc.Targets(ctx); err != nil {
			return err
		}
	}

	access, err := drive.ValidateFoldersExist(ctx, a.client, roots, drive.DefaultBatchSize)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	bad := 0
	for _, acc := range access {
		var line string
		switch {
		case !acc.Accessible:
			line = "inaccessible: " + acc.Reason
			bad++
		case !acc.IsFolder:
			line = "not a folder"
			bad++
		default:
			line = checkIndex(cmd, a, acc.ID)
			if line != "ok" && line != "no index" {
				bad++
			}
		}
		fmt.Fprintf(w, "%-12s %-24s %s\n", acc.ID, a.svc.Name(acc.ID), line)
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d roots have problems", bad, len(access))
	}
	return nil
}

func checkIndex(cmd *cobra.Command, a *app, root string) string {
	idx, err := a.mgr.LoadIndex(cmd.Context(), root)
	if err != nil {
		return "load index: " + err.Error()
	}
	if idx == nil {
		return "no index"
	}
	if err := idx.Check(); err != nil {
		return "corrupt index: " + err.Error()
	}
	return "ok"
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
