package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf"
)

var (
	verbose    bool
	configPath string
	cfg        shelf.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "A real-time synchronized shelf of items and folders",
	Long: `Shelf keeps one ordered collection of items and folders in sync across
every connected client. One server owns the document and saves it to disk;
clients edit locally, publish whole snapshots and keep working offline.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)

		loaded, err := shelf.LoadConfig(configPath)
		if err != nil {
			fatal("Failed to load config", err)
		}
		cfg = loaded
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: shelf.yaml found from the working directory up)")
}
