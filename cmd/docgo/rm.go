package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// rmCmd represents the rm command
var rmCmd = &cobra.Command{
	Use:   "rm [collection] [id]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		if err := db.Delete(context.Background(), args[0], args[1]); err != nil {
			fatal("Failed to delete document", err)
		}

		fmt.Printf("Document '%s' deleted.\n", args[1])
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
