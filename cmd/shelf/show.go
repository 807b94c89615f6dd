package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf"
)

var showJSON bool

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"ls"},
	Short:   "Print the shelf",
	Long: `Print the shelf as the server holds it. When the server cannot be
reached, the last document cached locally is shown instead.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withClient(func(ctx context.Context, client *shelf.Client) {
			snap, err := client.Fetch(ctx, timeout)
			if err != nil {
				fatal("Failed to fetch shelf", err)
			}

			if showJSON {
				data, err := snap.Document.MarshalIndent()
				if err != nil {
					fatal("Failed to encode shelf", err)
				}
				fmt.Println(string(data))
				return
			}

			if !snap.Live {
				fmt.Println(styleWarn.Render("offline: showing the cached shelf"))
			}
			fmt.Print(renderShelf(snap.Document))
		})
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the raw document")
	addClientFlags(showCmd)
	rootCmd.AddCommand(showCmd)
}
