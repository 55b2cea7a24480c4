package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var queryExplain bool

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [statement]",
	Short: "Run a query",
	Long: `Run a SQL-like query against the database, for example:

  docgo query "SELECT name FROM users WHERE age > 25 ORDER BY age DESC LIMIT 2"

Prints the matching documents as indented JSON. With --explain, also prints
the execution plan to stderr.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		res, err := db.ExecuteQuery(context.Background(), args[0])
		if err != nil {
			fatal("Query failed", err)
		}

		if queryExplain {
			fmt.Fprintf(os.Stderr, "used_index=%t indexed_fields=%v examined=%d matched=%d\n",
				res.Plan.UsedIndex, res.Plan.IndexedFields, res.Examined, res.Matched)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(res.Docs); err != nil {
			fatal("Failed to encode JSON", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryExplain, "explain", false, "Print the execution plan to stderr")
}
