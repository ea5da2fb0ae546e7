package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/coordinator"
	"github.com/mattjoyce/lockstep/internal/events"
)

// LockSnapshotter exposes the coordinator's view of held locks.
type LockSnapshotter interface {
	Owner() string
	Snapshot() []coordinator.LockInfo
}

// ExecutionLister reads the shared execution store.
type ExecutionLister interface {
	ListExecutions(ctx context.Context, jobName string, limit int) ([]*batch.JobExecution, error)
	GetExecution(ctx context.Context, id int64) (*batch.JobExecution, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey protects every route except /healthz. Empty leaves them open.
	APIKey string
}

type Deps struct {
	Locks      LockSnapshotter
	Executions ExecutionLister
	// Assigned reports the jobs this instance was assigned at startup.
	Assigned func() []string
	Events   *events.Hub
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(config Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Assigned == nil {
		deps.Assigned = func() []string { return nil }
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    deps.Logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/locks", s.handleLocks)
		r.Get("/jobs/{job}/executions", s.handleJobExecutions)
		r.Get("/executions/{id}", s.handleGetExecution)
		r.Get("/events", s.handleEvents)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
