// Package watch implements the hwcd watch TUI: a live view of one display
// session fed by the /events stream and periodic status polls.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusOK     lipgloss.Style
	StatusWarn   lipgloss.Style
	StatusFailed lipgloss.Style
	StatusIdle   lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Label     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	FlagOn  lipgloss.Style
	FlagOff lipgloss.Style
	Bar     lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusWarn:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusIdle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		FlagOn:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00")),
		FlagOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
		Bar:     lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
	}
}
