// Package inspect renders a job's execution history from the shared store,
// flagging runs that overlapped or went backwards in fencing order.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/lockstep/internal/batch"
)

// ExecutionLister reads executions newest first.
type ExecutionLister interface {
	ListExecutions(ctx context.Context, jobName string, limit int) ([]*batch.JobExecution, error)
}

// Report is the structured JSON representation of a job history.
type Report struct {
	Job        string         `json:"job"`
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	Owners     []string       `json:"owners"`
	Executions []Execution    `json:"executions"`
	Anomalies  []Anomaly      `json:"anomalies"`
}

type Execution struct {
	ID       int64      `json:"id"`
	Owner    string     `json:"owner"`
	Fence    uint64     `json:"fence"`
	Status   string     `json:"status"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Duration string     `json:"duration,omitempty"`
	Steps    int        `json:"steps"`
	Chunks   int        `json:"chunks"`
	Message  string     `json:"message,omitempty"`
}

// Anomaly is a pair of executions that should not coexist.
type Anomaly struct {
	Kind    string `json:"kind"`
	Earlier int64  `json:"earlier"`
	Later   int64  `json:"later"`
	Detail  string `json:"detail"`
}

const (
	AnomalyOverlap         = "overlap"
	AnomalyFenceRegression = "fence_regression"
)

// BuildReport renders a terminal-friendly history for job.
func BuildReport(ctx context.Context, store ExecutionLister, job string, limit int) (string, error) {
	report, err := gatherReportData(ctx, store, job, limit)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Execution Report\n")
	fmt.Fprintf(&out, "Job         : %s\n", report.Job)
	fmt.Fprintf(&out, "Executions  : %d\n", report.Total)
	fmt.Fprintf(&out, "Statuses    : %s\n", formatCounts(report.ByStatus))
	fmt.Fprintf(&out, "Owners      : %s\n", orNone(strings.Join(report.Owners, ", ")))
	fmt.Fprintf(&out, "\n")

	for _, e := range report.Executions {
		fmt.Fprintf(&out, "[%d] %s fence=%d owner=%s\n", e.ID, e.Status, e.Fence, e.Owner)
		fmt.Fprintf(&out, "    start    : %s\n", formatTime(e.Start))
		fmt.Fprintf(&out, "    end      : %s\n", formatTime(e.End))
		if e.Duration != "" {
			fmt.Fprintf(&out, "    duration : %s\n", e.Duration)
		}
		fmt.Fprintf(&out, "    steps    : %d (%d chunks)\n", e.Steps, e.Chunks)
		if e.Message != "" {
			fmt.Fprintf(&out, "    message  : %s\n", e.Message)
		}
	}

	if len(report.Anomalies) > 0 {
		fmt.Fprintf(&out, "\nAnomalies\n")
		for _, a := range report.Anomalies {
			fmt.Fprintf(&out, "  %s: %d -> %d: %s\n", a.Kind, a.Earlier, a.Later, a.Detail)
		}
	}
	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable report.
func BuildJSONReport(ctx context.Context, store ExecutionLister, job string, limit int) (string, error) {
	report, err := gatherReportData(ctx, store, job, limit)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, store ExecutionLister, job string, limit int) (*Report, error) {
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("job name is required")
	}
	execs, err := store.ListExecutions(ctx, job, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	report := &Report{
		Job:        job,
		Total:      len(execs),
		ByStatus:   make(map[string]int),
		Owners:     []string{},
		Executions: make([]Execution, 0, len(execs)),
		Anomalies:  []Anomaly{},
	}
	for _, e := range execs {
		report.ByStatus[string(e.Status)]++
		if !slices.Contains(report.Owners, e.Owner) {
			report.Owners = append(report.Owners, e.Owner)
		}
		report.Executions = append(report.Executions, summarize(e))
	}
	slices.Sort(report.Owners)
	report.Anomalies = findAnomalies(execs)
	return report, nil
}

func summarize(e *batch.JobExecution) Execution {
	out := Execution{
		ID:      e.ID,
		Owner:   e.Owner,
		Fence:   e.FencingToken,
		Status:  string(e.Status),
		Start:   e.StartTime,
		End:     e.EndTime,
		Steps:   len(e.Steps),
		Message: e.ExitMessage,
	}
	for _, s := range e.Steps {
		out.Chunks += s.ChunkCount
	}
	if e.StartTime != nil && e.EndTime != nil {
		out.Duration = e.EndTime.Sub(*e.StartTime).Round(time.Millisecond).String()
	}
	return out
}

// findAnomalies compares consecutive executions in creation order. A later
// run starting before the earlier one ended is an overlap; a later run from
// another owner with a lower fence is a regression.
func findAnomalies(newestFirst []*batch.JobExecution) []Anomaly {
	execs := slices.Clone(newestFirst)
	slices.Reverse(execs)

	out := []Anomaly{}
	for i := 1; i < len(execs); i++ {
		prev, cur := execs[i-1], execs[i]
		if prev.StartTime != nil && cur.StartTime != nil && (prev.EndTime == nil || cur.StartTime.Before(*prev.EndTime)) {
			out = append(out, Anomaly{
				Kind:    AnomalyOverlap,
				Earlier: prev.ID,
				Later:   cur.ID,
				Detail:  fmt.Sprintf("%s started while %s's run was %s", cur.Owner, prev.Owner, runningOrEnded(prev)),
			})
		}
		if cur.Owner != prev.Owner && cur.FencingToken != 0 && cur.FencingToken < prev.FencingToken {
			out = append(out, Anomaly{
				Kind:    AnomalyFenceRegression,
				Earlier: prev.ID,
				Later:   cur.ID,
				Detail:  fmt.Sprintf("fence %d after %d", cur.FencingToken, prev.FencingToken),
			})
		}
	}
	return out
}

func runningOrEnded(e *batch.JobExecution) string {
	if e.EndTime == nil {
		return "still " + string(e.Status)
	}
	return "active until " + e.EndTime.Format(time.RFC3339)
}

func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "<none>"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "<none>"
	}
	return t.Format(time.RFC3339)
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
