package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// dropCmd represents the drop command
var dropCmd = &cobra.Command{
	Use:   "drop [collection]",
	Short: "Drop a collection",
	Long:  `Drop a collection with all its documents and indexes.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		if err := db.DropCollection(context.Background(), args[0]); err != nil {
			fatal("Failed to drop collection", err)
		}

		fmt.Printf("Collection '%s' dropped.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(dropCmd)
}
