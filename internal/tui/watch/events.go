package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/lockstep/internal/events"
)

const (
	maxEventLog   = 50
	shownEventLog = 10
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := make([]string, 0, shownEventLog)
	for i, e := range eventLog {
		if i >= shownEventLog {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	body := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("EVENT STREAM"), body)
	return theme.Border.Width(innerWidth).Render(content)
}

func eventStyle(typ string, theme Theme) lipgloss.Style {
	switch typ {
	case events.LockAcquired, events.RunDispatched:
		return theme.StatusOK
	case events.LockLost, events.TickFailed, events.ExecutionAborted, events.RunReaped:
		return theme.StatusFailed
	case events.RunSkipped, events.LockUnavailable:
		return theme.StatusIdle
	case events.ConfigDrift:
		return theme.Highlight
	default:
		return theme.StatusRunning
	}
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))
	typ := eventStyle(e.Type, theme).Render(fmt.Sprintf("%-20s", e.Type))
	job := e.Job
	if job == "" {
		job = "-"
	}
	return fmt.Sprintf("%s %s %-16s %s", ts, typ, job, describeEvent(e))
}

// describeEvent renders the payload as sorted key=value pairs.
func describeEvent(e events.Event) string {
	data := make(map[string]any)
	if err := json.Unmarshal(e.Data, &data); err != nil || len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	desc := strings.Join(parts, " ")
	if len(desc) > 60 {
		desc = desc[:60] + "..."
	}
	return desc
}
