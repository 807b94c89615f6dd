package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf"
	lifecycleadapter "github.com/aretw0/shelf/pkg/adapters/lifecycle"
	"github.com/aretw0/shelf/pkg/agent"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and print the shelf whenever it changes",
	Long: `Watch keeps a sync agent connected to the server, reconnecting after
drops, and redraws the shelf on every update. Stop it with Ctrl+C.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withClient(func(ctx context.Context, client *shelf.Client) {
			source := lifecycleadapter.NewSource(client.Agent.Events())
			if err := source.Start(ctx); err != nil {
				fatal("Failed to start event source", err)
			}
			if err := client.Agent.Start(ctx); err != nil {
				fatal("Failed to start agent", err)
			}

			for e := range source.Events() {
				ev, ok := e.(agent.Event)
				if !ok {
					continue
				}
				stamp := styleDim.Render(time.Now().Format(time.TimeOnly))
				switch ev.Kind {
				case agent.EventConnect:
					fmt.Println(stamp, styleOK.Render("connected"))
				case agent.EventDisconnect:
					fmt.Println(stamp, styleWarn.Render("disconnected"))
				case agent.EventConnectionError:
					fmt.Println(stamp, styleError.Render(fmt.Sprintf("connection error: %v", ev.Err)))
				case agent.EventStateUpdate:
					fmt.Println(stamp, styleDim.Render("update"))
					fmt.Print(renderShelf(ev.Document))
				}
			}
		})
	},
}

func init() {
	addClientFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
