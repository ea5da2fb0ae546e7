// Package batch is the execution engine the coordinator dispatches into:
// job instances, their executions, and the chunked steps inside them, all
// persisted in the shared SQLite execution store.
package batch

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsRunning reports whether the status is non-terminal.
func (s Status) IsRunning() bool {
	return s == StatusRunning || s == StatusStopping
}

var (
	ErrAlreadyRunning     = errors.New("job already has a running execution")
	ErrJobNotRegistered   = errors.New("job not registered")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrEngineShuttingDown = errors.New("engine shutting down")
)

type JobInstance struct {
	ID        int64     `json:"id"`
	JobName   string    `json:"job_name"`
	CreatedAt time.Time `json:"created_at"`
}

// JobExecution is one attempt at running a JobInstance. Owner and
// FencingToken record which lock holder started it.
type JobExecution struct {
	ID           int64            `json:"id"`
	InstanceID   int64            `json:"instance_id"`
	JobName      string           `json:"job_name"`
	Owner        string           `json:"owner"`
	FencingToken uint64           `json:"fencing_token"`
	Status       Status           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	StartTime    *time.Time       `json:"start_time,omitempty"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	ExitMessage  string           `json:"exit_message,omitempty"`
	Steps        []*StepExecution `json:"steps,omitempty"`
}

type StepExecution struct {
	ID          int64      `json:"id"`
	ExecutionID int64      `json:"execution_id"`
	StepName    string     `json:"step_name"`
	Status      Status     `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	ChunkCount  int        `json:"chunk_count"`
	ExitMessage string     `json:"exit_message,omitempty"`
}

// Tag identifies the lock holder launching an execution.
type Tag struct {
	Owner        string
	FencingToken uint64
}

// ChunkContext describes the unit of work about to run.
type ChunkContext struct {
	JobName      string
	ExecutionID  int64
	StepName     string
	Chunk        int
	Owner        string
	FencingToken uint64
}

// ChunkListener is consulted before every chunk. A non-nil error aborts the
// execution before the chunk runs; it is not retried.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, cc ChunkContext) error
}

// ChunkFunc processes one chunk and reports whether the step is finished.
type ChunkFunc func(ctx context.Context, cc ChunkContext) (done bool, err error)

type Step struct {
	Name  string
	Chunk ChunkFunc
}

type Job struct {
	Name  string
	Steps []Step
}
