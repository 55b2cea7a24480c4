package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/docgo/index"
)

var (
	indexName   string
	indexField  string
	indexKind   string
	indexUnique bool
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage secondary indexes",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create [collection]",
	Short: "Create an index on a collection",
	Long:  `Create a secondary index and backfill it from the existing documents.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := index.ParseKind(indexKind)
		if err != nil {
			fatal("Invalid kind", err)
		}

		db := openDatabase()
		defer db.Close()

		def := index.Definition{
			Name:   indexName,
			Field:  indexField,
			Kind:   kind,
			Unique: indexUnique,
		}
		if err := db.CreateIndex(context.Background(), args[0], def); err != nil {
			fatal("Failed to create index", err)
		}

		fmt.Printf("Index '%s' created on '%s'.\n", indexName, args[0])
	},
}

var indexDropCmd = &cobra.Command{
	Use:   "drop [collection] [name]",
	Short: "Drop an index",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		if err := db.DropIndex(context.Background(), args[0], args[1]); err != nil {
			fatal("Failed to drop index", err)
		}

		fmt.Printf("Index '%s' dropped.\n", args[1])
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexCreateCmd)
	indexCmd.AddCommand(indexDropCmd)

	indexCreateCmd.Flags().StringVar(&indexName, "name", "", "Index name")
	indexCreateCmd.Flags().StringVar(&indexField, "field", "", "Document field to index")
	indexCreateCmd.Flags().StringVar(&indexKind, "kind", "exact", "Index kind (exact, ordered or token)")
	indexCreateCmd.Flags().BoolVar(&indexUnique, "unique", false, "Enforce distinct values across the collection")
	indexCreateCmd.MarkFlagRequired("name")
	indexCreateCmd.MarkFlagRequired("field")
}
