package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf/pkg/core"
)

var moveToRoot bool

// moveCmd represents the move command
var moveCmd = &cobra.Command{
	Use:   "move ID [TARGET]",
	Short: "Move an item or folder as if dropped onto TARGET",
	Long: `Move resolves a drop of ID onto TARGET the way the shelf UI does:

  item onto a folder          the item goes into the folder
  item onto a root item       the item goes to root, just before the target
  item onto an item elsewhere the item joins the target's folder
  item onto a sibling         the item is placed just before the target
  folder onto a folder        the folder is placed just before the target

With --root the item leaves its folder and keeps its position.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		if moveToRoot {
			if len(args) != 1 {
				fatal("Invalid arguments", fmt.Errorf("--root takes no TARGET"))
			}
			edit(fmt.Sprintf("moved %s to root", id), func(d core.Document) (core.Document, error) {
				if _, ok := d.Item(id); !ok {
					return d, fmt.Errorf("item %q not found", id)
				}
				return core.MoveToRoot(d, id), nil
			})
			return
		}
		if len(args) != 2 {
			fatal("Invalid arguments", fmt.Errorf("TARGET is required without --root"))
		}
		target := args[1]

		edit(fmt.Sprintf("moved %s onto %s", id, target), func(d core.Document) (core.Document, error) {
			draggedItem, draggedFolder := lookup(d, id)
			if !draggedItem && !draggedFolder {
				return d, notFound(id)
			}
			targetItem, targetFolder := lookup(d, target)
			if !targetItem && !targetFolder {
				return d, notFound(target)
			}
			if draggedFolder && targetItem {
				return d, fmt.Errorf("cannot move folder %q onto item %q: %w", id, target, core.ErrCrossKindReorder)
			}
			return core.Drop(d, id, target), nil
		})
	},
}

func init() {
	moveCmd.Flags().BoolVar(&moveToRoot, "root", false, "Take the item out of its folder")
	addClientFlags(moveCmd)
	rootCmd.AddCommand(moveCmd)
}
