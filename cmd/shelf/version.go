package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/shelf"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of shelf",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shelf version %s\n", strings.TrimSpace(shelf.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
