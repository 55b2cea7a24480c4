package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/docgo/txn"
)

var txOps string

// txCmd represents the tx command
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Execute an atomic transaction batch",
	Long: `Execute a batch of operations atomically: either all of them apply
or none do. The batch is a JSON array of operations, read from --ops or from
stdin, for example:

  [
    {"kind": "update", "collection": "accounts", "id": "a1", "merge": true, "data": {"balance": 70}},
    {"kind": "insert", "collection": "transfers", "data": {"from": "a1", "to": "a2", "amount": 30}},
    {"kind": "delete", "collection": "holds", "where": {"field": "account", "op": "=", "value": "a1"}}
  ]`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		raw := []byte(txOps)
		if txOps == "" {
			var err error
			raw, err = io.ReadAll(os.Stdin)
			if err != nil {
				fatal("Failed to read stdin", err)
			}
		}

		var ops []txn.Operation
		if err := json.Unmarshal(raw, &ops); err != nil {
			fatal("Invalid operations JSON", err)
		}

		db := openDatabase()
		defer db.Close()

		ids, err := db.ExecuteTransaction(context.Background(), ops)
		if err != nil {
			fatal("Transaction failed", err)
		}

		fmt.Printf("Transaction committed, %d operation(s) applied.\n", len(ids))
		for i, id := range ids {
			fmt.Printf("  %s %s/%s\n", ops[i].Kind, ops[i].Collection, id)
		}
	},
}

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.Flags().StringVar(&txOps, "ops", "", "Operations as a JSON array (default: read stdin)")
}
