package scheduler

import "context"

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/lockstep/internal/scheduler Acquirer,Runner

// Acquirer makes a single non-blocking lock attempt for a job.
type Acquirer interface {
	Acquire(ctx context.Context, job string) bool
}

// Runner is one periodic unit of work, normally a job's dispatch loop.
// Run must not panic past its own boundary and should honor ctx.
type Runner interface {
	Run(ctx context.Context)
}

// RunnerFactory builds the Runner for an assigned job.
type RunnerFactory func(job string) Runner
