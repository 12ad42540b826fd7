// Command lexisync runs and drives the LexiFlow sync server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lexiflow/lexisync/internal/config"
)

var (
	configFile string

	// v holds the merged settings: defaults, config file, LEXISYNC_* env
	// and bound flags.
	v = config.New()

	// cfg is decoded from v before any command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lexisync",
	Short: "LexiFlow entity sync server and client",
	Long: `lexisync keeps LexiFlow clients in step with the server.

Clients pull changes since their last checkpoint and push batches of
create, update and delete envelopes. The server applies each envelope
independently, rejects stale writes by row version and gates privileged
tables by role.

Settings come from lexisync.toml (or .yaml) in the working directory or
~/.lexisync, overridden by LEXISYNC_* environment variables and flags.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(v, configFile)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = loaded
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: ./lexisync.toml or ~/.lexisync/lexisync.toml)")
	flags.String("server", "", "server URL for client commands (client.url)")
	flags.String("token", "", "bearer token for client commands (client.token)")
	flags.String("db", "", "database path for serve and status (db.path)")
	mustBind("client.url", flags.Lookup("server"))
	mustBind("client.token", flags.Lookup("token"))
	mustBind("db.path", flags.Lookup("db"))
}

// mustBind makes flag override key in v when it is set.
func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind %s: %v", key, err))
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
