package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf"
)

var (
	serveAddr    string
	serveDataDir string
	serveWatch   bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broadcast server",
	Long: `Run the server that owns the shared document. Clients connect over a
websocket at /ws; /healthz and /state expose liveness and a read-only copy.
The document is saved to state.json (with a backup) in the data directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := append(cfg.ServerOptions(), shelf.WithLogger(slog.Default()))
		if cmd.Flags().Changed("addr") {
			opts = append(opts, shelf.WithAddr(serveAddr))
		}
		if cmd.Flags().Changed("watch") {
			opts = append(opts, shelf.WithWatch(serveWatch))
		}
		dataDir := cfg.Server.DataDir
		if cmd.Flags().Changed("data-dir") {
			dataDir = serveDataDir
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := shelf.NewServer(ctx, dataDir, opts...)
		if err != nil {
			fatal("Failed to start server", err)
		}

		// Best-effort save if something below panics.
		defer func() {
			if r := recover(); r != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := srv.Flush(flushCtx); err != nil {
					slog.Error("failed to save state after panic", "error", err)
				}
				panic(r)
			}
		}()

		if err := srv.Run(ctx); err != nil {
			fatal("Server stopped with error", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config and SHELF_ADDR)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Directory holding state.json (overrides config and SHELF_DATA_DIR)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload state.json when it is edited by hand")
	rootCmd.AddCommand(serveCmd)
}
