package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/docgo"
)

var (
	dataDir string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docgo",
	Short: "An embedded, file-backed document database with schemas, indexes and transactions",
	Long: `Docgo stores JSON documents as plain files on disk and layers schema
validation, semantic typing, secondary indexes, SQL-like queries and atomic
multi-document transactions on top.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "dir", "d", ".", "Database directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// openDatabase opens the database at --dir with logging wired to stderr.
func openDatabase() *docgo.DB {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	db, err := docgo.Open(dataDir, docgo.WithLogLevel(level))
	if err != nil {
		fatal("Failed to open database", err)
	}
	return db
}
