// Package watch is a terminal dashboard for a running lockstep instance. It
// polls /healthz and /locks and follows the /events SSE stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme keeps every style used by the dashboard in one place.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusIdle    lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func fg(hex string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex))
}

// NewDefaultTheme uses a solarized-like palette that reads on both dark and
// light terminals.
func NewDefaultTheme() Theme {
	const (
		green  = "#859900"
		yellow = "#B58900"
		red    = "#DC322F"
		base0  = "#839496"
		base02 = "#073642"
		cyan   = "#2AA198"
		orange = "#CB4B16"
	)

	return Theme{
		StatusOK:      fg(green),
		StatusRunning: fg(yellow),
		StatusFailed:  fg(red),
		StatusIdle:    fg(base0),

		Border:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(cyan)),
		Title:     fg(cyan).Bold(true).Padding(0, 1),
		Dim:       fg(base0),
		Highlight: fg(orange),

		TickerActive:   fg(green),
		TickerInactive: fg(base02),
	}
}
