package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "admin",
	Short:   "Inspect and create configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the current settings",
	Long: `Write the effective settings (defaults plus any environment overrides)
as TOML. The default path is ./lexisync.toml. Existing files are kept
unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "lexisync.toml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")

		flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if force {
			flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		// #nosec G304 - controlled path from CLI
		f, err := os.OpenFile(path, flag, 0600)
		if err != nil {
			if os.IsExist(err) {
				fatalf("%s already exists (use --force to overwrite)", path)
			}
			fatalf("%v", err)
		}

		if err := config.WriteTOML(f, v); err != nil {
			_ = f.Close()
			fatalf("%v", err)
		}
		if err := f.Close(); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", renderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings with secrets masked",
	Run: func(cmd *cobra.Command, args []string) {
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Printf("# %s\n", used)
		} else {
			fmt.Println("# no config file, defaults and environment only")
		}
		if err := config.WriteYAML(os.Stdout, config.Redacted(v)); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
