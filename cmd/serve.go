package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/warehouse/logging"
	"github.com/ghyeongl/warehouse/warehouse"
)

var noDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the sync daemon",
	Long: `Serve the HTTP API. Unless --no-daemon is set, enabled drives are
crawled on start, synced on the configured interval, and picked up as
soon as they are added to the drives file.

Example:
  warehouse serve --addr :8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		daemon := warehouse.NewDaemon(a.svc, a.drives)
		if !noDaemon {
			go daemon.Run(ctx)
		} else {
			logging.L().Info("sync daemon disabled")
		}

		h := warehouse.NewHandlers(a.svc, daemon, a.drives, cfg.DataDir)
		return warehouse.Serve(ctx, cfg.Addr, warehouse.NewRouter(h, cfg.CORSOrigins))
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().BoolVar(&noDaemon, "no-daemon", false, "serve requests without background syncing")
	rootCmd.AddCommand(serveCmd)
}
