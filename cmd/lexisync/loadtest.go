package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/loadtest"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "admin",
	Short:   "Run concurrent writers against a server",
	Long: `Start concurrent writers that update a few shared records with the
row version they last saw. Under the reject policy most pushes conflict;
exactly one writer wins each round on a given record.

Seed records are named loadtest-000, loadtest-001, ... and are left in the
table afterwards.`,
	Run: func(cmd *cobra.Command, args []string) {
		table, _ := cmd.Flags().GetString("table")
		writers, _ := cmd.Flags().GetInt("writers")
		pushes, _ := cmd.Flags().GetInt("pushes")
		keys, _ := cmd.Flags().GetInt("keys")

		fmt.Printf("%s %d writers x %d pushes on %d %s records\n",
			renderAccent("→"), writers, pushes, keys, table)

		report, err := loadtest.Run(cmd.Context(), newClient(), loadtest.Options{
			Table:           table,
			Writers:         writers,
			PushesPerWriter: pushes,
			Keys:            keys,
		})
		if err != nil {
			fatalf("%v", err)
		}
		report.Print(os.Stdout)
	},
}

func init() {
	loadtestCmd.Flags().String("table", "Categories", "table to write")
	loadtestCmd.Flags().Int("writers", 10, "concurrent writers")
	loadtestCmd.Flags().Int("pushes", 20, "pushes per writer")
	loadtestCmd.Flags().Int("keys", 5, "shared records")

	rootCmd.AddCommand(loadtestCmd)
}
