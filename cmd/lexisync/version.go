package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lexisync %s\n", version.Version)

		if check, _ := cmd.Flags().GetBool("check"); check {
			c := newClient()
			health, err := c.Health(cmd.Context())
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("server   %s (%s)\n", health.Version, cfg.Client.URL)
			checkServer(cmd.Context(), c, version.Version)
		}
	},
}

func init() {
	versionCmd.Flags().Bool("check", false, "also query the server and compare major versions")
	rootCmd.AddCommand(versionCmd)
}
