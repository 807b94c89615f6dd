package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aretw0/shelf/pkg/core"
)

var (
	addID       string
	addIcon     string
	addFolderID string
	addClosed   bool
)

// addCmd groups the creation commands
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an item or a folder",
}

var addItemCmd = &cobra.Command{
	Use:   "item TITLE",
	Short: "Add an item at the end of the shelf",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		icon := core.Icon(addIcon)
		if !icon.Valid() {
			fatal("Invalid icon", fmt.Errorf("%q is not one of book, arrow-up, arrow-down", addIcon))
		}
		id := addID
		if id == "" {
			id = uuid.NewString()
		}
		item := core.Item{ID: id, Title: args[0], Icon: icon}

		edit(fmt.Sprintf("added item %s", id), func(d core.Document) (core.Document, error) {
			if _, exists := d.Item(id); exists {
				return d, fmt.Errorf("item %q already exists", id)
			}
			if addFolderID != "" {
				if _, ok := d.Folder(addFolderID); !ok {
					return d, fmt.Errorf("folder %q not found", addFolderID)
				}
				folder := addFolderID
				item.FolderID = &folder
			}
			return core.AddItem(d, item), nil
		})
	},
}

var addFolderCmd = &cobra.Command{
	Use:   "folder NAME",
	Short: "Add a folder after the existing ones",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := addID
		if id == "" {
			id = uuid.NewString()
		}
		folder := core.Folder{ID: id, Name: args[0], IsOpen: !addClosed}

		edit(fmt.Sprintf("added folder %s", id), func(d core.Document) (core.Document, error) {
			if _, exists := d.Folder(id); exists {
				return d, fmt.Errorf("folder %q already exists", id)
			}
			return core.AddFolder(d, folder), nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{addItemCmd, addFolderCmd} {
		c.Flags().StringVar(&addID, "id", "", "Explicit id (default: a new UUID)")
		addClientFlags(c)
		addCmd.AddCommand(c)
	}
	addItemCmd.Flags().StringVar(&addIcon, "icon", string(core.IconBook), "Icon: book, arrow-up or arrow-down")
	addItemCmd.Flags().StringVar(&addFolderID, "folder", "", "Put the item in this folder")
	addFolderCmd.Flags().BoolVar(&addClosed, "closed", false, "Create the folder collapsed")
	rootCmd.AddCommand(addCmd)
}
