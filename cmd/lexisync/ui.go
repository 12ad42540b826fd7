package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#E65100", Dark: "#FFB74D"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#E57373"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#64B5F6"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9E9E9E"})
	headerStyle = lipgloss.NewStyle().Bold(true)
)

func init() {
	// Plain text when piped.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func renderPass(s string) string { return passStyle.Render(s) }
func renderWarn(s string) string { return warnStyle.Render(s) }
func renderFail(s string) string { return failStyle.Render(s) }
func renderAccent(s string) string { return accentStyle.Render(s) }
func renderMuted(s string) string { return mutedStyle.Render(s) }
func renderHeader(s string) string { return headerStyle.Render(s) }
