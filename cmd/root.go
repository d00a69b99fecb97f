// Package cmd is the warehouse command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Mirror Google Drive image folders into a searchable index",
	Long: `warehouse crawls shared Google Drive folders into a denormalized
index of folders and images, keeps it current from the Drive change
feed, and serves it over HTTP.

Settings come from a config file, WAREHOUSE_* environment variables,
a .env file and flags, in increasing order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		if cfg, err = config.Load(v); err != nil {
			return err
		}
		logging.Init(logging.Options{Dir: cfg.Log.Dir, Level: logging.ParseLevel(cfg.Log.Level)})
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("data-dir", "", "directory for the drives file and local caches")
	flags.String("drives-file", "", "drives file (default <data-dir>/drives.yaml)")
	flags.String("api-key", "", "Google Drive API key")
	flags.String("log-level", "", "console log level: debug, info, warn or error")
	flags.String("log-dir", "", "write rotated log files to this directory")
	flags.String("cache-provider", "", "index store: memory, file, bolt, sqlite or redis")
}
