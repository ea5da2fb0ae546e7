package dispatch

import (
	"context"

	"github.com/mattjoyce/lockstep/internal/batch"
)

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks github.com/mattjoyce/lockstep/internal/dispatch ExecutionQuery,Launcher,LockCoordinator,RunReaper

// ExecutionQuery is the read side of the execution store, plus the two
// overwrites the reaper needs.
type ExecutionQuery interface {
	FindInstancesByName(ctx context.Context, jobName string, offset, limit int) ([]*batch.JobInstance, error)
	ExecutionsForInstance(ctx context.Context, instanceID int64) ([]*batch.JobExecution, error)
	FindRunningExecutions(ctx context.Context, jobName string) ([]*batch.JobExecution, error)
	UpdateJobExecution(ctx context.Context, e *batch.JobExecution) error
	UpdateStepExecution(ctx context.Context, s *batch.StepExecution) error
}

// Launcher starts the next instance of a job without waiting for it.
type Launcher interface {
	StartNextInstance(ctx context.Context, jobName string, tag batch.Tag) (int64, error)
}

// LockCoordinator is the subset of coordinator.Coordinator a loop uses.
type LockCoordinator interface {
	Acquire(ctx context.Context, job string) bool
	IsValid(job string) bool
	Fence(job string) (uint64, bool)
	Owner() string
}

// RunReaper cleans up executions abandoned by a previous lock holder.
type RunReaper interface {
	Reap(ctx context.Context, jobName string) error
}

// lastInstanceRunning reports whether the most recent instance of jobName
// has a running or stopping execution.
func lastInstanceRunning(ctx context.Context, q ExecutionQuery, jobName string) (bool, error) {
	instances, err := q.FindInstancesByName(ctx, jobName, 0, 1)
	if err != nil {
		return false, err
	}
	if len(instances) == 0 {
		return false, nil
	}
	execs, err := q.ExecutionsForInstance(ctx, instances[0].ID)
	if err != nil {
		return false, err
	}
	for _, e := range execs {
		if e.Status.IsRunning() {
			return true, nil
		}
	}
	return false, nil
}
