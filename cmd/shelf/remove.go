package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf/pkg/core"
)

// removeCmd represents the remove command
var removeCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove an item, or a folder (its items move to root)",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		edit(fmt.Sprintf("removed %s", id), func(d core.Document) (core.Document, error) {
			isItem, isFolder := lookup(d, id)
			switch {
			case isItem:
				return core.RemoveItem(d, id), nil
			case isFolder:
				return core.RemoveFolder(d, id), nil
			}
			return d, notFound(id)
		})
	},
}

// toggleCmd represents the toggle command
var toggleCmd = &cobra.Command{
	Use:   "toggle FOLDER",
	Short: "Open or collapse a folder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		edit(fmt.Sprintf("toggled %s", id), func(d core.Document) (core.Document, error) {
			if _, ok := d.Folder(id); !ok {
				return d, fmt.Errorf("folder %q not found", id)
			}
			return core.ToggleFolder(d, id), nil
		})
	},
}

func init() {
	addClientFlags(removeCmd)
	addClientFlags(toggleCmd)
	rootCmd.AddCommand(removeCmd, toggleCmd)
}
