package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/api"
	"github.com/lexiflow/lexisync/internal/client"
	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

var pullCmd = &cobra.Command{
	Use:     "pull <table>",
	GroupID: "sync",
	Short:   "Fetch changes from the server",
	Long: `Fetch the change feed of a table and print it as JSON.

Without --since the server returns every live record. --since accepts an
ISO-8601 timestamp or a phrase such as "2 hours ago" or "yesterday".

Examples:
  lexisync pull Categories
  lexisync pull VocabularyItems --since 2026-10-01T00:00:00Z
  lexisync pull Lessons --since "3 days ago"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sinceFlag, _ := cmd.Flags().GetString("since")

		var since *time.Time
		if sinceFlag != "" {
			t, err := parseSince(sinceFlag, time.Now())
			if err != nil {
				fatalf("%v", err)
			}
			since = &t
		}

		envs, err := newClient().Pull(cmd.Context(), args[0], since)
		if err != nil {
			fatalf("%v", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(envs); err != nil {
			fatalf("%v", err)
		}
	},
}

var pushCmd = &cobra.Command{
	Use:     "push <table> <file>",
	GroupID: "sync",
	Short:   "Send a batch of envelopes to the server",
	Long: `Send a JSON array of change envelopes to a table. Use "-" to read
the batch from stdin.

Each envelope looks like:
  {"Id":"42","SyncAction":"Update","RowVersion":"01J...","Data":"{\"Name\":\"N5\"}"}`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		table, path := args[0], args[1]

		data, err := readInput(path)
		if err != nil {
			fatalf("%v", err)
		}
		batch, bad, err := lexisync.DecodeBatch(data)
		if err != nil {
			fatalf("%v", err)
		}
		for _, ie := range bad {
			fmt.Fprintf(os.Stderr, "%s skipping %v\n", renderWarn("⚠"), ie)
		}

		result, err := newClient().Push(cmd.Context(), table, batch)
		if err != nil {
			fatalf("%v", err)
		}
		printApplyResult(table, result.WithItemErrors(bad))
	},
}

var timestampCmd = &cobra.Command{
	Use:     "timestamp",
	GroupID: "sync",
	Short:   "Print the server's current checkpoint",
	Run: func(cmd *cobra.Command, args []string) {
		ts, err := newClient().Timestamp(cmd.Context())
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(ts.Format(time.RFC3339Nano))
	},
}

func init() {
	pullCmd.Flags().String("since", "", "checkpoint: ISO-8601 or a phrase like \"2 hours ago\"")

	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(timestampCmd)
}

func newClient() *client.Client {
	return client.New(cfg.Client.URL, cfg.Client.Token)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

var naturalTime = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince accepts the same formats as the server's lastSyncTime, then
// falls back to natural language relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := api.ParseCheckpoint(s); err == nil {
		return t, nil
	}

	r, err := naturalTime.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: not a time", s)
	}
	return r.Time.UTC(), nil
}

func printApplyResult(table string, r *lexisync.ApplyResult) {
	mark := renderPass("✓")
	if r.ErrorCount > 0 {
		mark = renderWarn("⚠")
	}
	fmt.Printf("%s %s: %d created, %d updated, %d deleted, %d errors (%d conflicts)\n",
		mark, renderAccent(table), r.CreatedCount, r.UpdatedCount, r.DeletedCount, r.ErrorCount, r.ConflictCount)
	for _, ie := range r.PerItemErrors {
		fmt.Printf("   %s %s %s\n", renderFail(string(ie.Kind)), ie.EntityID, renderMuted(ie.Reason))
	}
}

// checkServer warns when the server's major version differs from ours.
func checkServer(ctx context.Context, c *client.Client, clientVersion string) {
	if err := c.CheckCompatibility(ctx, clientVersion); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", renderWarn("⚠"), err)
	}
}
