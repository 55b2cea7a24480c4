package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/docgo"
	"github.com/hupe1980/docgo/semantic"
)

var (
	createSchema string
	createMode   string
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create [collection]",
	Short: "Create a collection",
	Long:  `Create a new collection, optionally bound to a schema and a semantic mode.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mode, err := semantic.ParseMode(createMode)
		if err != nil {
			fatal("Invalid mode", err)
		}

		db := openDatabase()
		defer db.Close()

		err = db.CreateCollection(context.Background(), args[0], func(o *docgo.CollectionOptions) {
			o.Schema = createSchema
			o.Mode = mode
		})
		if err != nil {
			fatal("Failed to create collection", err)
		}

		fmt.Printf("Collection '%s' created.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&createSchema, "schema", "", "Schema URI to validate documents against")
	createCmd.Flags().StringVar(&createMode, "mode", "", "Semantic mode (permissive or strict)")
}
