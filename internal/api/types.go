package api

import (
	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/coordinator"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string   `json:"status"`
	Owner         string   `json:"owner"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	AssignedJobs  []string `json:"assigned_jobs"`
	LocksValid    int      `json:"locks_valid"`
	LocksExpired  int      `json:"locks_expired"`
}

// LocksResponse is returned by GET /locks.
type LocksResponse struct {
	Owner string                 `json:"owner"`
	Locks []coordinator.LockInfo `json:"locks"`
}

// ExecutionsResponse is returned by GET /jobs/{job}/executions.
type ExecutionsResponse struct {
	Job        string                `json:"job"`
	Executions []*batch.JobExecution `json:"executions"`
}
