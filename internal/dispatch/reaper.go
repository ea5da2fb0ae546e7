package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/events"
	"github.com/mattjoyce/lockstep/internal/metrics"
)

const abandonedMessage = "stopped: abandoned by a previous lock holder"

type ReaperConfig struct {
	// Grace is how long a running execution gets to finish on its own.
	Grace time.Duration
	// PollInterval is the wait between checks during the grace period.
	PollInterval time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Events  events.Publisher

	// Sleep and Now default to a context-aware timer and time.Now.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Reaper force-stops executions whose owner stopped renewing its lock.
type Reaper struct {
	query ExecutionQuery
	cfg   ReaperConfig
}

func NewReaper(q ExecutionQuery, cfg ReaperConfig) *Reaper {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Logger = cfg.Logger.With("component", "reaper")
	return &Reaper{query: q, cfg: cfg}
}

// Reap waits out the grace period for a running execution of jobName and
// stops it if it is still running afterwards. It returns early with the
// context's error if ctx ends while waiting.
func (r *Reaper) Reap(ctx context.Context, jobName string) (err error) {
	ctx, span := tracer.Start(ctx, "dispatch.reap", trace.WithAttributes(attribute.String("job", jobName)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := r.cfg.Logger.With("job", jobName)

	running, err := lastInstanceRunning(ctx, r.query, jobName)
	if err != nil {
		return fmt.Errorf("check last execution: %w", err)
	}
	if !running {
		logger.Debug("no running execution to reap")
		return nil
	}

	logger.Warn("execution still running at lock acquisition; waiting for it to finish",
		"grace", r.cfg.Grace, "poll", r.cfg.PollInterval)

	var waited time.Duration
	for running && waited < r.cfg.Grace {
		if err := r.cfg.Sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
		waited += r.cfg.PollInterval

		running, err = lastInstanceRunning(ctx, r.query, jobName)
		if err != nil {
			return fmt.Errorf("check last execution: %w", err)
		}
	}
	r.cfg.Metrics.ObserveReapWait(jobName, waited.Seconds())
	span.SetAttributes(attribute.Float64("waited_seconds", waited.Seconds()))

	if !running {
		logger.Info("running execution finished within grace period", "waited", waited)
		return nil
	}
	return r.stopAbandoned(ctx, logger, jobName)
}

func (r *Reaper) stopAbandoned(ctx context.Context, logger *slog.Logger, jobName string) error {
	execs, err := r.query.FindRunningExecutions(ctx, jobName)
	if err != nil {
		return fmt.Errorf("find running executions: %w", err)
	}

	now := r.cfg.Now().UTC()
	var errs []error
	stopped := 0
	for _, e := range execs {
		for _, s := range e.Steps {
			if !s.Status.IsRunning() {
				continue
			}
			s.Status = batch.StatusStopped
			s.EndTime = &now
			s.ExitMessage = abandonedMessage
			if err := r.query.UpdateStepExecution(ctx, s); err != nil {
				errs = append(errs, fmt.Errorf("stop step %d: %w", s.ID, err))
			}
		}

		e.Status = batch.StatusStopped
		e.EndTime = &now
		e.ExitMessage = abandonedMessage
		if err := r.query.UpdateJobExecution(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("stop execution %d: %w", e.ID, err))
			continue
		}
		stopped++

		logger.Warn("forced abandoned execution to stopped",
			"execution_id", e.ID, "previous_owner", e.Owner, "fence", e.FencingToken)
		r.cfg.Events.Publish(events.RunReaped, jobName, map[string]any{
			"execution_id":   e.ID,
			"previous_owner": e.Owner,
			"fence":          e.FencingToken,
		})
	}
	r.cfg.Metrics.RecordReaped(jobName, stopped)
	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
