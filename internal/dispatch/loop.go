package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/events"
	"github.com/mattjoyce/lockstep/internal/metrics"
)

type LoopConfig struct {
	Job      string
	Locks    LockCoordinator
	Query    ExecutionQuery
	Launcher Launcher
	Reaper   RunReaper

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Events  events.Publisher
}

// Loop is the per-job dispatch tick. One Loop exists per assigned job and
// is driven by the scheduler at a fixed delay; ticks never overlap.
type Loop struct {
	cfg    LoopConfig
	logger *slog.Logger

	mu          sync.Mutex
	reapPending bool
	lastExecID  atomic.Int64
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	return &Loop{
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "dispatch", "job", cfg.Job),
		reapPending: true,
	}
}

func (l *Loop) Job() string { return l.cfg.Job }

// LastExecutionID returns the id of the last execution this loop launched,
// or 0 if it has not launched one.
func (l *Loop) LastExecutionID() int64 { return l.lastExecID.Load() }

// Tick runs one dispatch decision:
//   - an invalid lock gets one re-acquisition attempt; failure skips the tick
//   - the reaper runs on first activation and after every re-acquisition
//   - a running last instance skips the tick
//   - otherwise exactly one new instance is started, tagged with owner and fence
func (l *Loop) Tick(ctx context.Context) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	job := l.cfg.Job
	ctx, span := tracer.Start(ctx, "dispatch.tick", trace.WithAttributes(attribute.String("job", job)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !l.cfg.Locks.IsValid(job) {
		l.logger.Warn("lock no longer valid; attempting re-acquisition")
		l.cfg.Metrics.RecordLockLost(job)
		l.cfg.Events.Publish(events.LockLost, job, nil)

		if !l.cfg.Locks.Acquire(ctx, job) {
			l.logger.Info("lock held elsewhere; skipping tick")
			l.skip(span, metrics.TickLockUnavailable)
			return nil
		}
		l.reapPending = true
	}

	if l.reapPending {
		if err := l.cfg.Reaper.Reap(ctx, job); err != nil {
			return fmt.Errorf("reap abandoned runs: %w", err)
		}
		l.reapPending = false
	}

	running, err := lastInstanceRunning(ctx, l.cfg.Query, job)
	if err != nil {
		return fmt.Errorf("check in-flight run: %w", err)
	}
	if running {
		l.logger.Debug("previous execution still running; skipping tick")
		l.skip(span, metrics.TickInFlight)
		return nil
	}

	// The reaper may have waited out the lease.
	fence, ok := l.cfg.Locks.Fence(job)
	if !ok {
		l.logger.Warn("lock expired before dispatch; skipping tick")
		l.skip(span, metrics.TickLockUnavailable)
		return nil
	}
	id, err := l.cfg.Launcher.StartNextInstance(ctx, job, batch.Tag{
		Owner:        l.cfg.Locks.Owner(),
		FencingToken: fence,
	})
	if errors.Is(err, batch.ErrAlreadyRunning) {
		l.logger.Debug("execution started concurrently; skipping tick")
		l.skip(span, metrics.TickInFlight)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start next instance: %w", err)
	}

	l.lastExecID.Store(id)
	span.SetAttributes(attribute.Int64("execution_id", id), attribute.Int64("fence", int64(fence)))
	l.logger.Info("job triggered", "execution_id", id, "fence", fence)
	l.cfg.Metrics.RecordTick(job, metrics.TickDispatched)
	l.cfg.Events.Publish(events.RunDispatched, job, map[string]any{
		"execution_id": id,
		"fence":        fence,
	})
	return nil
}

func (l *Loop) skip(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("outcome", outcome))
	l.cfg.Metrics.RecordTick(l.cfg.Job, outcome)
	l.cfg.Events.Publish(events.RunSkipped, l.cfg.Job, map[string]any{"reason": outcome})
}

// Run is Tick for the scheduler: errors and panics are logged, never
// propagated, so the next tick still happens.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch tick panicked", "panic", r, "stack", string(debug.Stack()))
			l.cfg.Metrics.RecordTick(l.cfg.Job, metrics.TickError)
		}
	}()

	if err := l.Tick(ctx); err != nil {
		l.logger.Error("dispatch tick failed", "error", err)
		l.cfg.Metrics.RecordTick(l.cfg.Job, metrics.TickError)
		l.cfg.Events.Publish(events.TickFailed, l.cfg.Job, map[string]any{"error": err.Error()})
	}
}
