package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf"
	"github.com/aretw0/shelf/pkg/core"
)

const shutdownGrace = 3 * time.Second

var (
	serverURL string
	cacheDir  string
	timeout   time.Duration
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", "", "Server websocket URL (overrides config and SHELF_SERVER_URL)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Directory of the local cache (default: user cache dir)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the server before working offline")
}

// withClient runs fn with a started-on-demand client and tears it down
// afterwards, waiting for the agent to stop before closing its cache.
func withClient(fn func(ctx context.Context, client *shelf.Client)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := cfg.Client.ServerURL
	if serverURL != "" {
		url = serverURL
	}
	dir := cacheDir
	if dir == "" {
		var err error
		if dir, err = cfg.ClientDataDir(); err != nil {
			fatal("Failed to locate cache", err)
		}
	}

	opts := append(cfg.ClientOptions(), shelf.WithLogger(slog.Default()))
	client, err := shelf.NewClient(ctx, url, dir, opts...)
	if err != nil {
		fatal("Failed to open client", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		select {
		case <-client.Agent.Done():
		case <-time.After(shutdownGrace):
		}
		if err := client.Close(); err != nil {
			slog.Warn("failed to close cache", "error", err)
		}
	}()
	fn(runCtx, client)
}

// edit applies mutation through a one-shot client and reports the outcome.
func edit(summary string, mutation shelf.Mutation) {
	withClient(func(ctx context.Context, client *shelf.Client) {
		snap, err := client.Edit(ctx, timeout, mutation)
		if err != nil {
			fatal("Edit failed", err)
		}
		if snap.Live {
			fmt.Println(styleOK.Render("✓ " + summary))
		} else {
			fmt.Println(styleWarn.Render("… " + summary + " (offline: saved locally, sent on next connection)"))
		}
	})
}

// lookup reports whether id names an item or a folder in d.
func lookup(d core.Document, id string) (isItem, isFolder bool) {
	_, isItem = d.Item(id)
	_, isFolder = d.Folder(id)
	return isItem, isFolder
}

func notFound(id string) error {
	return fmt.Errorf("no item or folder with id %q", id)
}
