package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/catalog"
	"github.com/lexiflow/lexisync/internal/db"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "admin",
	Short:   "Show row counts of the local database",
	Long: `Open the database at db.path and show, per table, the live and
soft-deleted row counts and the role required to sync it.`,
	Run: func(cmd *cobra.Command, args []string) {
		info, err := os.Stat(cfg.DB.Path)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s No database at %s\n", renderWarn("⚠"), cfg.DB.Path)
			fmt.Printf("   Run 'lexisync serve' to create it\n\n")
			return
		}
		if err != nil {
			fatalf("%v", err)
		}

		database, err := db.Open(cfg.DB.Path)
		if err != nil {
			fatalf("%v", err)
		}
		defer database.Close()

		if err := database.InitSchema(catalog.SQLTables()...); err != nil {
			fatalf("%v", err)
		}

		roleOf := make(map[string]string, len(catalog.Entries))
		for _, e := range catalog.Entries {
			role := e.RequiredRole
			for name, r := range cfg.Sync.TableRoles {
				if strings.EqualFold(name, e.Name) {
					role = r
				}
			}
			roleOf[e.SQLTable] = role
		}

		row := lipgloss.NewStyle().Width(18)
		num := lipgloss.NewStyle().Width(8).Align(lipgloss.Right)

		fmt.Printf("\n%s %s (%.1f KB)\n\n", renderHeader("Database"), cfg.DB.Path, float64(info.Size())/1024)
		fmt.Println(lipgloss.JoinHorizontal(lipgloss.Top,
			row.Render(renderHeader("Table")), num.Render(renderHeader("Live")),
			num.Render(renderHeader("Deleted")), "  ", renderHeader("Role")))

		for _, e := range catalog.Entries {
			stats, err := database.Stats(e.SQLTable)
			if err != nil {
				fatalf("%v", err)
			}
			role := roleOf[e.SQLTable]
			if role == "" {
				role = renderMuted("any")
			}
			fmt.Println(lipgloss.JoinHorizontal(lipgloss.Top,
				row.Render(e.Name), num.Render(fmt.Sprint(stats.Live)),
				num.Render(fmt.Sprint(stats.Deleted)), "  ", role))
		}

		latest, err := database.LatestChange(catalog.SQLTables()...)
		if err != nil {
			fatalf("%v", err)
		}
		if latest.IsZero() {
			fmt.Printf("\n%s no changes recorded\n\n", renderMuted("Last change:"))
			return
		}
		fmt.Printf("\n%s %s (%s ago)\n\n", renderMuted("Last change:"),
			latest.Format(time.RFC3339), time.Since(latest).Round(time.Second))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
