// Package scheduler assigns jobs to this instance at startup and drives
// one fixed-delay timer per assigned job on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mattjoyce/lockstep/internal/events"
	"github.com/mattjoyce/lockstep/internal/metrics"
)

var (
	ErrAlreadyInitialized = errors.New("scheduler already initialized")
	ErrDrainTimeout       = errors.New("scheduler drain timed out")
)

type Config struct {
	// Period is the delay between the end of one tick and the start of the next.
	Period time.Duration
	// PoolSize bounds how many ticks run at once across all jobs.
	PoolSize int
	// Rounds is the total number of acquisition rounds, the first included.
	Rounds int
	// RoundDelay is slept before each retry round.
	RoundDelay time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Events  events.Publisher
}

// Scheduler manages job assignment and the periodic dispatch timers.
type Scheduler struct {
	cfg     Config
	locks   Acquirer
	factory RunnerFactory
	logger  *slog.Logger
	pool    *semaphore.Weighted

	mu          sync.Mutex
	initialized bool
	assigned    []string

	tickCtx    context.Context
	cancelTick context.CancelFunc
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func New(cfg Config, locks Acquirer, factory RunnerFactory) *Scheduler {
	if cfg.Period <= 0 {
		cfg.Period = 30 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 20
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:        cfg,
		locks:      locks,
		factory:    factory,
		logger:     cfg.Logger.With("component", "scheduler"),
		pool:       semaphore.NewWeighted(int64(cfg.PoolSize)),
		tickCtx:    tickCtx,
		cancelTick: cancel,
		stopCh:     make(chan struct{}),
	}
}

// Assign acquires locks greedily in the order of jobs. The first round stops
// at capacity successes. While fewer than capacity are held, up to Rounds-1
// retry rounds run over the jobs not yet assigned. Each retry round may take
// up to the current capacity and raises capacity by what it acquired, so the
// total can exceed the configured capacity.
func (s *Scheduler) Assign(ctx context.Context, jobs []string, capacity int) []string {
	tokens := capacity
	remaining := slices.Clone(jobs)

	acquired := s.acquireRound(ctx, remaining, tokens, 1)
	for round := 2; len(acquired) < tokens && round <= s.cfg.Rounds; round++ {
		remaining = slices.DeleteFunc(remaining, func(job string) bool {
			return slices.Contains(acquired, job)
		})
		if len(remaining) == 0 {
			break
		}
		if err := s.waitRound(ctx); err != nil {
			s.logger.Warn("assignment interrupted", "round", round, "error", err)
			break
		}

		s.logger.Info("tokens free; trying to acquire more",
			"free", tokens-len(acquired), "round", round)
		got := s.acquireRound(ctx, remaining, tokens, round)
		tokens += len(got)
		acquired = append(acquired, got...)
	}
	return acquired
}

func (s *Scheduler) acquireRound(ctx context.Context, jobs []string, limit, round int) []string {
	var got []string
	for _, job := range jobs {
		if len(got) == limit {
			break
		}
		if s.locks.Acquire(ctx, job) {
			got = append(got, job)
		}
	}
	s.logger.Info("acquisition round finished", "round", round, "acquired", got, "attempted", len(jobs))
	return got
}

func (s *Scheduler) waitRound(ctx context.Context) error {
	if s.cfg.RoundDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.cfg.RoundDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Initialize runs Assign and starts a timer for every assigned job. The
// first tick of each job starts immediately. Jobs are never reassigned
// afterwards; an empty assignment leaves the instance idle.
func (s *Scheduler) Initialize(ctx context.Context, jobs []string, capacity int) ([]string, error) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil, ErrAlreadyInitialized
	}
	s.initialized = true
	s.mu.Unlock()

	assigned := s.Assign(ctx, jobs, capacity)

	s.mu.Lock()
	s.assigned = slices.Clone(assigned)
	s.mu.Unlock()

	s.cfg.Metrics.SetAssignedJobs(len(assigned))
	s.cfg.Events.Publish(events.JobsAssigned, "", map[string]any{
		"jobs":     assigned,
		"capacity": capacity,
	})

	if len(assigned) == 0 {
		s.logger.Warn("no jobs assigned; instance stays idle until restart", "candidates", jobs)
		return nil, nil
	}
	if len(assigned) > capacity {
		s.logger.Warn("assigned more jobs than capacity", "assigned", len(assigned), "capacity", capacity)
	}

	for _, job := range assigned {
		s.schedule(job, s.factory(job))
	}
	s.logger.Info("scheduler started", "jobs", assigned, "period", s.cfg.Period, "pool_size", s.cfg.PoolSize)
	return assigned, nil
}

// Assigned returns the jobs Initialize scheduled.
func (s *Scheduler) Assigned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.assigned)
}

func (s *Scheduler) schedule(job string, r Runner) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if !s.tick(r) {
				return
			}
			t := time.NewTimer(s.cfg.Period)
			select {
			case <-s.stopCh:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}()
	s.logger.Debug("job scheduled", "job", job)
}

// tick runs r on a pool slot. It reports false once the scheduler stops.
func (s *Scheduler) tick(r Runner) bool {
	if err := s.pool.Acquire(s.tickCtx, 1); err != nil {
		return false
	}
	defer s.pool.Release(1)

	select {
	case <-s.stopCh:
		return false
	default:
	}
	r.Run(s.tickCtx)
	return true
}

// Stop cancels all timers and waits up to drain for in-flight ticks. Ticks
// still running after drain have their context cancelled and Stop returns
// ErrDrainTimeout without waiting for them.
func (s *Scheduler) Stop(drain time.Duration) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	defer s.cancelTick()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(drain)
	defer t.Stop()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-t.C:
		s.logger.Error("in-flight ticks did not finish within drain period", "drain", drain)
		return fmt.Errorf("%w after %s", ErrDrainTimeout, drain)
	}
}
