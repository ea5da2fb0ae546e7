package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/lockstep/internal/events"
)

// JobState is what the dashboard knows about one job, merged from /locks
// polls and the event stream.
type JobState struct {
	Name        string
	Held        bool
	Fence       uint64
	ExpiresAt   time.Time
	ExecutionID int64
	Outcome     string
	LastChange  time.Time
}

func jobFor(jobs map[string]*JobState, name string) *JobState {
	j, ok := jobs[name]
	if !ok {
		j = &JobState{Name: name}
		jobs[name] = j
	}
	return j
}

func updateJobState(jobs map[string]*JobState, e events.Event) {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	if e.Type == events.JobsAssigned {
		names, _ := data["jobs"].([]any)
		for _, n := range names {
			if name, ok := n.(string); ok {
				jobFor(jobs, name)
			}
		}
		return
	}
	if e.Job == "" {
		return
	}

	j := jobFor(jobs, e.Job)
	j.LastChange = e.At
	execID := int64(0)
	if v, ok := data["execution_id"].(float64); ok {
		execID = int64(v)
	}

	switch e.Type {
	case events.LockAcquired:
		j.Held = true
		if v, ok := data["fence"].(float64); ok {
			j.Fence = uint64(v)
		}
		j.Outcome = "lock acquired"
	case events.LockUnavailable:
		j.Held = false
		j.Outcome = "lock unavailable"
	case events.LockLost:
		j.Held = false
		j.Outcome = "lock lost"
	case events.LockReleased:
		j.Held = false
		j.Outcome = "released"
	case events.RunDispatched:
		j.ExecutionID = execID
		j.Outcome = "dispatched"
	case events.RunSkipped:
		reason, _ := data["reason"].(string)
		j.Outcome = "skipped: " + reason
	case events.TickFailed:
		j.Outcome = "tick failed"
	case events.RunReaped:
		j.Outcome = fmt.Sprintf("reaped #%d", execID)
	case events.ExecutionAborted:
		j.Outcome = fmt.Sprintf("aborted #%d", execID)
	case events.ExecutionFinished:
		status, _ := data["status"].(string)
		j.Outcome = fmt.Sprintf("#%d %s", execID, strings.ToLower(status))
	}
}

// applyLocks replaces lock fields with the authoritative /locks view. Jobs
// no longer listed are marked as not held.
func applyLocks(jobs map[string]*JobState, locks []lockView) {
	seen := make(map[string]bool, len(locks))
	for _, l := range locks {
		j := jobFor(jobs, l.Job)
		j.Held = l.Valid
		j.Fence = l.Fence
		j.ExpiresAt = l.ExpiresAt
		seen[l.Job] = true
	}
	for name, j := range jobs {
		if !seen[name] {
			j.Held = false
		}
	}
}

func sortedJobNames(jobs map[string]*JobState) []string {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newJobTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Job", Width: 20},
			{Title: "Lock", Width: 8},
			{Title: "Fence", Width: 7},
			{Title: "Expires", Width: 9},
			{Title: "Exec", Width: 7},
			{Title: "Last", Width: 28},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func jobRows(jobs map[string]*JobState, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(jobs))
	for _, name := range sortedJobNames(jobs) {
		j := jobs[name]
		lock := "-"
		if j.Held {
			lock = "held"
		} else if j.Fence > 0 {
			lock = "lost"
		}
		fence, expires, exec := "-", "-", "-"
		if j.Fence > 0 {
			fence = fmt.Sprintf("%d", j.Fence)
		}
		if j.Held && !j.ExpiresAt.IsZero() {
			expires = fmt.Sprintf("%.1fs", j.ExpiresAt.Sub(now).Seconds())
		}
		if j.ExecutionID > 0 {
			exec = fmt.Sprintf("%d", j.ExecutionID)
		}
		rows = append(rows, table.Row{j.Name, lock, fence, expires, exec, j.Outcome})
	}
	return rows
}

func renderJobs(t table.Model, empty bool, theme Theme, width int) string {
	innerWidth := width - 4
	if empty {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("JOBS"),
			theme.Dim.Render("  No jobs assigned yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}
	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("JOBS"), t.View())
	return theme.Border.Width(innerWidth).Render(content)
}
