package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mattjoyce/lockstep/internal/events"
	"github.com/mattjoyce/lockstep/internal/metrics"
)

// Engine launches registered jobs asynchronously and runs their steps chunk
// by chunk, consulting every ChunkListener before each chunk.
type Engine struct {
	repo    *Repository
	logger  *slog.Logger
	metrics *metrics.Collector
	events  events.Publisher

	mu        sync.Mutex
	jobs      map[string]Job
	listeners []ChunkListener
	closing   bool
	active    int

	runCtx     context.Context
	cancelRuns context.CancelFunc
	wg         sync.WaitGroup
}

type EngineOption func(*Engine)

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Collector) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithEvents(p events.Publisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

func NewEngine(repo *Repository, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		repo:       repo,
		logger:     slog.Default(),
		events:     events.Discard,
		jobs:       make(map[string]Job),
		runCtx:     ctx,
		cancelRuns: cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

func (e *Engine) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is empty")
	}
	if len(job.Steps) == 0 {
		return fmt.Errorf("job %s has no steps", job.Name)
	}
	for i, s := range job.Steps {
		if s.Name == "" || s.Chunk == nil {
			return fmt.Errorf("job %s step %d: name and chunk func are required", job.Name, i)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.jobs[job.Name]; dup {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	e.jobs[job.Name] = job
	return nil
}

func (e *Engine) AddListener(l ChunkListener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// Jobs lists registered job names.
func (e *Engine) Jobs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.jobs))
	for name := range e.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Active is the number of executions this engine is running.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// StartNextInstance creates a new instance of jobName and runs it in the
// background. It returns the execution id without waiting for completion.
func (e *Engine) StartNextInstance(ctx context.Context, jobName string, tag Tag) (int64, error) {
	e.mu.Lock()
	job, ok := e.jobs[jobName]
	closing := e.closing
	e.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrJobNotRegistered, jobName)
	}
	if closing {
		return 0, ErrEngineShuttingDown
	}

	exec, err := e.repo.CreateRun(ctx, jobName, tag)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		_, _ = e.repo.FinishExecution(context.Background(), exec.ID, StatusStopped, "engine shutting down")
		return 0, ErrEngineShuttingDown
	}
	e.active++
	e.wg.Add(1)
	listeners := append([]ChunkListener(nil), e.listeners...)
	e.mu.Unlock()

	go e.run(job, exec, listeners)
	return exec.ID, nil
}

// Shutdown stops accepting runs and waits for in-flight ones. When ctx ends
// first, runs are cancelled at their next chunk boundary and ctx's error is
// returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancelRuns()
		return nil
	case <-ctx.Done():
		e.cancelRuns()
		return fmt.Errorf("engine drain: %w", ctx.Err())
	}
}

func (e *Engine) run(job Job, exec *JobExecution, listeners []ChunkListener) {
	logger := e.logger.With("job", job.Name, "execution_id", exec.ID, "fence", exec.FencingToken)
	// Status writes must land even while runs are being cancelled.
	dbCtx := context.WithoutCancel(e.runCtx)

	status, msg := StatusCompleted, ""
	defer func() {
		if r := recover(); r != nil {
			status, msg = StatusFailed, fmt.Sprintf("panic: %v", r)
			logger.Error("execution panicked", "panic", r)
		}
		e.finish(dbCtx, logger, exec, status, msg)
	}()

	logger.Info("execution started", "owner", exec.Owner)
	for _, step := range job.Steps {
		se, err := e.repo.CreateStepExecution(dbCtx, exec.ID, step.Name)
		if err != nil {
			status, msg = StatusFailed, err.Error()
			return
		}

		stepStatus, stepMsg := e.runStep(logger, job, exec, step, se, listeners)
		if _, err := e.repo.FinishStep(dbCtx, se.ID, stepStatus, stepMsg); err != nil {
			logger.Error("failed to finish step", "step", step.Name, "error", err)
		}
		if stepStatus != StatusCompleted {
			status, msg = stepStatus, stepMsg
			return
		}
	}
}

func (e *Engine) runStep(logger *slog.Logger, job Job, exec *JobExecution, step Step, se *StepExecution, listeners []ChunkListener) (Status, string) {
	ctx := e.runCtx
	dbCtx := context.WithoutCancel(ctx)

	for chunk := 1; ; chunk++ {
		if ctx.Err() != nil {
			return StatusStopped, "stopped: engine shutting down"
		}

		cc := ChunkContext{
			JobName:      job.Name,
			ExecutionID:  exec.ID,
			StepName:     step.Name,
			Chunk:        chunk,
			Owner:        exec.Owner,
			FencingToken: exec.FencingToken,
		}
		for _, l := range listeners {
			if err := l.BeforeChunk(ctx, cc); err != nil {
				logger.Warn("execution aborted before chunk", "step", step.Name, "chunk", chunk, "error", err)
				return StatusFailed, "aborted: " + err.Error()
			}
		}

		done, err := step.Chunk(ctx, cc)
		if rerr := e.repo.RecordChunk(dbCtx, se.ID, chunk); rerr != nil {
			logger.Warn("failed to record chunk", "step", step.Name, "chunk", chunk, "error", rerr)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return StatusStopped, "stopped: engine shutting down"
			}
			logger.Error("chunk failed", "step", step.Name, "chunk", chunk, "error", err)
			return StatusFailed, err.Error()
		}
		if done {
			return StatusCompleted, ""
		}
	}
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, exec *JobExecution, status Status, msg string) {
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
		e.wg.Done()
	}()

	applied, err := e.repo.FinishExecution(ctx, exec.ID, status, msg)
	switch {
	case err != nil:
		logger.Error("failed to record execution outcome", "status", status, "error", err)
	case !applied:
		// Someone else (the reaper of a later lock holder) already closed it.
		logger.Warn("execution already finalized elsewhere; outcome discarded", "status", status)
	default:
		logger.Info("execution finished", "status", status, "exit_message", msg)
	}

	e.metrics.RecordExecutionFinished(exec.JobName, string(status))
	e.events.Publish(events.ExecutionFinished, exec.JobName, map[string]any{
		"execution_id": exec.ID,
		"status":       status,
		"applied":      err == nil && applied,
	})
}
