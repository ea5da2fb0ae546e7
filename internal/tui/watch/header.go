package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState is the last /healthz answer.
type HealthState struct {
	Status        string
	Owner         string
	UptimeSeconds int64
	AssignedJobs  []string
	LocksValid    int
	LocksExpired  int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(h HealthState, ticker Ticker, activity Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	status := theme.StatusOK.Render("OK")
	switch {
	case !h.Connected:
		status = theme.StatusFailed.Render("CONNECTING")
	case h.Status != "ok" && h.Status != "":
		status = theme.StatusFailed.Render(strings.ToUpper(h.Status))
	}

	title := fmt.Sprintf(" LOCKSTEP WATCH %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	owner := h.Owner
	if owner == "" {
		owner = "-"
	}
	statsLine := fmt.Sprintf(" %s  owner %s  up %s  assigned %d  locks %d valid / %d expired",
		status,
		theme.Highlight.Render(owner),
		formatDuration(time.Duration(h.UptimeSeconds)*time.Second),
		len(h.AssignedJobs),
		h.LocksValid,
		h.LocksExpired,
	)

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = formatAgo(now.Sub(activity.LastEvent()))
	}
	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, activity.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatAgo(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
