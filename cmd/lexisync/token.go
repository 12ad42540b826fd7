package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:     "token <subject>",
	GroupID: "admin",
	Short:   "Issue a bearer token signed with auth.jwt_secret",
	Long: `Issue an HS256 token for a principal. Useful for service accounts,
local testing and the monitor.

Examples:
  lexisync token learner-42 --role Learner
  lexisync token ops --role Admin --ttl 1h`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		roles, _ := cmd.Flags().GetStringSlice("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		resolver, err := auth.NewJWTResolver([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
		if err != nil {
			fatalf("%v", err)
		}
		token, err := resolver.Sign(auth.Principal{ID: args[0], Name: name, Roles: roles}, ttl)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(token)
	},
}

func init() {
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.Flags().StringSlice("role", nil, "role to grant (repeatable)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(tokenCmd)
}
