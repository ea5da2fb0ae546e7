package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/lockstep/internal/api"
	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/config"
	"github.com/mattjoyce/lockstep/internal/coordinator"
	"github.com/mattjoyce/lockstep/internal/dispatch"
	"github.com/mattjoyce/lockstep/internal/events"
	"github.com/mattjoyce/lockstep/internal/jobs"
	"github.com/mattjoyce/lockstep/internal/lease"
	"github.com/mattjoyce/lockstep/internal/log"
	"github.com/mattjoyce/lockstep/internal/metrics"
	"github.com/mattjoyce/lockstep/internal/scheduler"
	"github.com/mattjoyce/lockstep/internal/sink"
	"github.com/mattjoyce/lockstep/internal/storage"
	"github.com/mattjoyce/lockstep/internal/tracing"
)

const releaseTimeout = 5 * time.Second

func newSystemCmd(opts *rootOptions) *cobra.Command {
	system := &cobra.Command{
		Use:   "system",
		Short: "Run the coordination service",
	}
	system.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Assign jobs, dispatch them periodically and serve the status API",
		Long: `start acquires up to instance.tokens job locks, then runs one dispatch loop
per assigned job until SIGINT or SIGTERM. On shutdown it drains in-flight
work for up to dispatch.shutdown_drain and releases every lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStart(ctx, cfg)
		},
	})
	return system
}

// runStart wires every component and blocks until ctx ends or a component
// fails.
func runStart(ctx context.Context, cfg *config.Config) error {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	owner := cfg.Instance.Owner
	if owner == "" {
		owner = lease.NewOwnerID()
	}
	logger := log.WithOwner(owner).With("component", "main")
	logger.Info("lockstep starting",
		"version", version,
		"config", cfg.SourceFile,
		"fingerprint", cfg.Fingerprint(),
		"backend", cfg.Lock.Backend,
		"tokens", cfg.Instance.Tokens,
	)

	shutdownTracing, err := tracing.Setup(cfg.Tracing, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if terr := shutdownTracing(tctx); terr != nil {
			logger.Warn("tracing shutdown failed", "error", terr)
		}
	}()

	if cfg.Instance.Owner != "" {
		claim, err := lease.ClaimOwner(filepath.Dir(cfg.State.Path), owner)
		if err != nil {
			return err
		}
		defer claim.Release()
		logger.Info("owner identity claimed", "path", claim.Path())
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state %s: %w", cfg.State.Path, err)
	}
	defer db.Close()
	logger.Info("execution store opened", "path", cfg.State.Path)

	base := log.WithOwner(owner)
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	hub := events.NewHub(256)

	svc, closeLeases, err := openLeaseService(ctx, cfg, owner, base)
	if err != nil {
		return fmt.Errorf("lock backend: %w", err)
	}
	coord := coordinator.New(svc,
		coordinator.WithLogger(base),
		coordinator.WithMetrics(m),
		coordinator.WithEvents(hub),
	)

	repo := batch.NewRepository(db)
	engine := batch.NewEngine(repo,
		batch.WithLogger(base),
		batch.WithMetrics(m),
		batch.WithEvents(hub),
	)
	engine.AddListener(coordinator.NewGate(coord))

	publisher, err := sink.New(cfg.Sink, base)
	if err != nil {
		_ = closeLeases()
		return fmt.Errorf("sink: %w", err)
	}
	defer publisher.Close()

	err = jobs.Register(engine, cfg.Jobs, jobs.Deps{
		Store:     jobs.NewStore(db),
		Sink:      publisher,
		Locks:     coord,
		Metrics:   m,
		Logger:    base,
		BatchSize: cfg.Sink.BatchSize,
	})
	if err != nil {
		_ = closeLeases()
		return err
	}

	reaper := dispatch.NewReaper(repo, dispatch.ReaperConfig{
		Grace:        cfg.EffectiveReapGrace(),
		PollInterval: cfg.Dispatch.ReapPollInterval,
		Logger:       base,
		Metrics:      m,
		Events:       hub,
	})
	sched := scheduler.New(scheduler.Config{
		Period:     cfg.Dispatch.Period,
		PoolSize:   cfg.Dispatch.PoolSize,
		Rounds:     cfg.Dispatch.AssignmentRounds,
		RoundDelay: cfg.Dispatch.RoundDelay,
		Logger:     base,
		Metrics:    m,
		Events:     hub,
	}, coord, func(job string) scheduler.Runner {
		return dispatch.NewLoop(dispatch.LoopConfig{
			Job:      job,
			Locks:    coord,
			Query:    repo,
			Launcher: engine,
			Reaper:   reaper,
			Logger:   base,
			Metrics:  m,
			Events:   hub,
		})
	})

	g, gctx := errgroup.WithContext(ctx)

	assigned, err := sched.Initialize(gctx, cfg.Jobs, cfg.Instance.Tokens)
	if err != nil {
		_ = closeLeases()
		return err
	}
	logger.Info("jobs assigned", "jobs", assigned, "count", len(assigned))

	if cfg.API.Enabled {
		server := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey}, api.Deps{
			Locks:      coord,
			Executions: repo,
			Assigned:   sched.Assigned,
			Events:     hub,
			Gatherer:   reg,
			Logger:     base,
		})
		g.Go(func() error {
			if err := server.Start(gctx); err != nil {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	}

	if cfg.SourceFile != "" {
		g.Go(func() error {
			return config.Watch(gctx, cfg, base.With("component", "config"), func(c config.Change) {
				hub.Publish(events.ConfigDrift, "", map[string]any{
					"path":            c.Path,
					"old_fingerprint": c.OldFingerprint,
					"new_fingerprint": c.NewFingerprint,
				})
			})
		})
	}

	logger.Info("lockstep running")
	<-gctx.Done()

	shutdown(logger, cfg.Dispatch.ShutdownDrain, sched, engine, coord)
	if cerr := closeLeases(); cerr != nil {
		logger.Warn("lock backend close failed", "error", cerr)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component failed", "error", err)
		return err
	}
	logger.Info("lockstep stopped")
	return nil
}

type stopper interface {
	Stop(drain time.Duration) error
}

type drainer interface {
	Shutdown(ctx context.Context) error
}

type releaser interface {
	ReleaseAll(ctx context.Context)
}

// shutdown stops dispatching, drains running executions within the same
// deadline, then gives every lock back.
func shutdown(logger *slog.Logger, drain time.Duration, sched stopper, engine drainer, locks releaser) {
	deadline := time.Now().Add(drain)
	logger.Info("shutting down", "drain", drain)

	if err := sched.Stop(drain); err != nil {
		logger.Warn("scheduler did not drain in time", "error", err)
	}

	drainCtx, cancel := context.WithDeadline(context.Background(), deadline)
	if err := engine.Shutdown(drainCtx); err != nil {
		logger.Warn("running executions cancelled", "error", err)
	}
	cancel()

	releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	locks.ReleaseAll(releaseCtx)
}
