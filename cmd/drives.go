package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/warehouse/config"
)

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "Manage the configured drives",
	Long: `List, add, remove, enable and disable the root folders in the drives
file. A running server picks up changes to the file on its own.`,
}

func openDrives() *config.Drives {
	return config.NewDrives(cfg.DrivesFile)
}

var drivesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured drives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openDrives().Read()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, d := range f.Drives {
			state := "enabled"
			if !d.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(w, "%-36s %-24s %-8s %s\n", d.ID, d.Name, state, d.FolderID)
		}
		fmt.Fprintf(w, "auto sync: %t, every %d minutes\n", f.Settings.AutoSync, f.Settings.SyncIntervalMinutes)
		return nil
	},
}

var (
	addID       string
	addDisabled bool
)

var drivesAddCmd = &cobra.Command{
	Use:   "add <name> <folder-url>",
	Short: "Add a drive by its folder URL",
	Long: `Add a drive by its folder URL.

Example:
  warehouse drives add Photos https://drive.google.com/drive/folders/1AbCdEfGhIjKlMnOp`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDrives().Add(config.Drive{ID: addID, Name: args[0], URL: args[1], Enabled: !addDisabled})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s) folder %s\n", d.Name, d.ID, d.FolderID)
		return nil
	},
}

var drivesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a drive; its index is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := openDrives().Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}

func setEnabledCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Mark a drive %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openDrives().SetEnabled(args[0], enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, args[0])
			return nil
		},
	}
}

func init() {
	drivesAddCmd.Flags().StringVar(&addID, "id", "", "drive id (default a new uuid)")
	drivesAddCmd.Flags().BoolVar(&addDisabled, "disabled", false, "add without syncing")
	drivesCmd.AddCommand(drivesListCmd, drivesAddCmd, drivesRemoveCmd,
		setEnabledCmd("enable", true), setEnabledCmd("disable", false))
	rootCmd.AddCommand(drivesCmd)
}
