package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme bundles palette, symbols and the panel border.
// All UI helpers pull from `current`.
type Theme struct {
	Title, Muted, Accent, Success, Error, Pending lipgloss.Style
	Selected, Done                                lipgloss.Style

	BoxUnchecked, BoxChecked string
	SymDone, SymPending      string
	Border                   lipgloss.Border
	BorderColor              lipgloss.TerminalColor
}

var current = themeNamed("classic")

// SetTheme switches the palette: classic, neon or mono. Unknown names fall
// back to classic.
func SetTheme(name string) { current = themeNamed(name) }

// Current returns the active theme.
func Current() Theme { return current }

func themeNamed(name string) Theme {
	switch strings.ToLower(name) {
	case "neon":
		return Theme{
			Title:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
			Muted:        lipgloss.NewStyle().Faint(true),
			Accent:       lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
			Success:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
			Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			Pending:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
			Selected:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
			Done:         lipgloss.NewStyle().Faint(true).Strikethrough(true),
			BoxUnchecked: "◻", BoxChecked: "◼",
			SymDone: "✔", SymPending: "•",
			Border:      lipgloss.RoundedBorder(),
			BorderColor: lipgloss.Color("13"),
		}
	case "mono":
		plain := lipgloss.NewStyle()
		return Theme{
			Title: plain.Bold(true), Muted: plain, Accent: plain,
			Success: plain, Error: plain, Pending: plain,
			Selected: plain.Reverse(true), Done: plain,
			BoxUnchecked: "[ ]", BoxChecked: "[x]",
			SymDone: "x", SymPending: "-",
			Border:      lipgloss.ASCIIBorder(),
			BorderColor: lipgloss.NoColor{},
		}
	default: // classic
		return Theme{
			Title:        lipgloss.NewStyle().Bold(true),
			Muted:        lipgloss.NewStyle().Faint(true),
			Accent:       lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
			Success:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			Pending:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			Selected:     lipgloss.NewStyle().Bold(true).Reverse(true),
			Done:         lipgloss.NewStyle().Faint(true).Strikethrough(true),
			BoxUnchecked: "☐", BoxChecked: "☑",
			SymDone: "✔", SymPending: "•",
			Border:      lipgloss.RoundedBorder(),
			BorderColor: lipgloss.Color("8"),
		}
	}
}
