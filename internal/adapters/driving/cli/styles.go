package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette for command output. Colour is dropped automatically when the
// output is not a terminal.
var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colourMuted)
	successStyle = lipgloss.NewStyle().Foreground(colourSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colourWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colourError)
	labelStyle   = lipgloss.NewStyle().Width(22)
)

func title(s string) string { return titleStyle.Render(s) }

func muted(s string) string { return mutedStyle.Render(s) }

func ok(s string) string { return successStyle.Render("✓ " + s) }

func warn(s string) string { return warningStyle.Render("! " + s) }

func fail(s string) string { return errorStyle.Render("✗ " + s) }

// field renders an aligned "label value" line.
func field(label string, value any) string {
	return labelStyle.Render(label+":") + fmt.Sprint(value)
}

// list renders indented items, or "(none)".
func list(items []string) string {
	if len(items) == 0 {
		return "  " + muted("(none)")
	}
	return "  " + strings.Join(items, "\n  ")
}
