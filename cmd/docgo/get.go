package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [collection] [id]",
	Short: "Read a document",
	Long:  `Read a document by its ID and print it as indented JSON.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		doc, err := db.Get(context.Background(), args[0], args[1])
		if err != nil {
			fatal("Failed to read document", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(doc); err != nil {
			fatal("Failed to encode JSON", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
