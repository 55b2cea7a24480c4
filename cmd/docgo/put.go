package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	putData  string
	putID    string
	putMerge bool
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put [collection]",
	Short: "Insert or update a document",
	Long: `Insert a JSON document into a collection. With --id and an existing
document, updates it instead: --merge patches the stored fields, otherwise the
document is replaced. Reads the document from --data, or from stdin when
--data is omitted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw := []byte(putData)
		if putData == "" {
			var err error
			raw, err = io.ReadAll(os.Stdin)
			if err != nil {
				fatal("Failed to read stdin", err)
			}
		}

		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			fatal("Invalid JSON document", err)
		}

		db := openDatabase()
		defer db.Close()

		ctx := context.Background()
		collection := args[0]

		if putID != "" {
			if _, err := db.Get(ctx, collection, putID); err == nil {
				update := db.Replace
				if putMerge {
					update = db.Update
				}
				if err := update(ctx, collection, putID, data); err != nil {
					fatal("Failed to update document", err)
				}
				fmt.Printf("Document '%s' updated.\n", putID)
				return
			}
			data["id"] = putID
		}

		id, err := db.Insert(ctx, collection, data)
		if err != nil {
			fatal("Failed to insert document", err)
		}

		fmt.Printf("Document '%s' inserted.\n", id)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putData, "data", "", "Document as a JSON object (default: read stdin)")
	putCmd.Flags().StringVar(&putID, "id", "", "Document ID (default: taken from the document or generated)")
	putCmd.Flags().BoolVar(&putMerge, "merge", false, "Merge into an existing document instead of replacing it")
}
