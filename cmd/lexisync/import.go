package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/importer"
)

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "sync",
	Short:   "Import JSONL records into a table",
	Long: `Read one entity object per line and push each as a Create envelope.

Lines without an "Id" are given a UUID. Records whose id already exists are
reported as conflicts and left unchanged, so an import can be re-run.

Examples:
  lexisync import --table VocabularyItems n5-vocab.jsonl
  lexisync import --table Courses courses.jsonl --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		table, _ := cmd.Flags().GetString("table")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		start := time.Now()
		result, err := importer.ImportFile(cmd.Context(), newClient(), args[0], importer.Options{
			Table:     table,
			BatchSize: batchSize,
			DryRun:    dryRun,
		})
		if err != nil {
			if result != nil {
				printApplyResult(table, &result.Apply)
			}
			fatalf("%v", err)
		}

		if dryRun {
			fmt.Printf("%s %d records parsed (%d without Id), nothing pushed\n",
				renderAccent("→"), result.Envelopes, result.GeneratedID)
			return
		}
		printApplyResult(table, &result.Apply)
		fmt.Printf("   %d batches in %v\n", result.Batches, time.Since(start).Round(time.Millisecond))
	},
}

func init() {
	importCmd.Flags().String("table", "", "target table (required)")
	importCmd.Flags().Int("batch-size", 500, "envelopes per push")
	importCmd.Flags().Bool("dry-run", false, "parse without pushing")
	_ = importCmd.MarkFlagRequired("table")

	rootCmd.AddCommand(importCmd)
}
