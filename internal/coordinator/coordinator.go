// Package coordinator tracks which job locks this instance holds.
//
// The Coordinator is the only shared state between dispatch loops. Expired
// entries are never removed by validity checks; an entry is replaced only
// when a fresh acquisition for the same job succeeds, or dropped on Release.
package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/lockstep/internal/events"
	"github.com/mattjoyce/lockstep/internal/lease"
	"github.com/mattjoyce/lockstep/internal/metrics"
)

// LockInfo is a point-in-time view of one recorded lock.
type LockInfo struct {
	Job       string    `json:"job"`
	Owner     string    `json:"owner"`
	Fence     uint64    `json:"fence"`
	ExpiresAt time.Time `json:"expires_at"`
	Valid     bool      `json:"valid"`
}

type Coordinator struct {
	svc     lease.Service
	logger  *slog.Logger
	metrics *metrics.Collector
	events  events.Publisher

	mu   sync.RWMutex
	held map[string]*lease.Lease
}

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.events = p
		}
	}
}

func New(svc lease.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		svc:    svc,
		logger: slog.Default(),
		events: events.Discard,
		held:   make(map[string]*lease.Lease),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "coordinator", "owner", svc.Owner())
	return c
}

// Owner is the lock identity of this instance.
func (c *Coordinator) Owner() string {
	return c.svc.Owner()
}

// Acquire makes one attempt to take the lock for job. It never retries and
// never returns an error; failures are logged and reported as false.
func (c *Coordinator) Acquire(ctx context.Context, job string) bool {
	l, err := c.svc.TryAcquire(ctx, job)
	if err != nil {
		c.logger.Error("lock acquisition failed", "job", job, "error", err)
		c.metrics.RecordAcquire(job, metrics.AcquireError)
		return false
	}
	if l == nil {
		c.logger.Info("lock held elsewhere", "job", job)
		c.metrics.RecordAcquire(job, metrics.AcquireUnavailable)
		c.events.Publish(events.LockUnavailable, job, nil)
		return false
	}

	c.mu.Lock()
	c.held[job] = l
	c.mu.Unlock()

	c.logger.Info("lock acquired", "job", job, "fence", l.Version, "expires_at", l.ExpiresAt())
	c.metrics.RecordAcquire(job, metrics.AcquireOK)
	c.metrics.SetLocksHeld(c.validCount())
	c.events.Publish(events.LockAcquired, job, map[string]any{"fence": l.Version, "owner": l.Owner})
	return true
}

// IsValid reports whether a lock for job is recorded and not yet expired.
// It is a local check and does not contact the lock service.
func (c *Coordinator) IsValid(job string) bool {
	c.mu.RLock()
	l, ok := c.held[job]
	c.mu.RUnlock()

	if !ok {
		c.logger.Debug("no lock recorded", "job", job)
		return false
	}
	if l.IsExpired() {
		c.logger.Warn("lock expired", "job", job, "fence", l.Version, "expired_at", l.ExpiresAt())
		return false
	}
	return true
}

// Fence returns the fencing version of the lock for job while it is valid.
func (c *Coordinator) Fence(job string) (uint64, bool) {
	c.mu.RLock()
	l, ok := c.held[job]
	c.mu.RUnlock()
	if !ok || l.IsExpired() {
		return 0, false
	}
	return l.Version, true
}

// validCount is the number of recorded locks that have not expired.
func (c *Coordinator) validCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, l := range c.held {
		if !l.IsExpired() {
			n++
		}
	}
	return n
}

// Release drops the local record and asks the lock service to release it.
// Remote failures are logged only; lease expiry is the backstop.
func (c *Coordinator) Release(ctx context.Context, job string) {
	c.mu.Lock()
	l, ok := c.held[job]
	delete(c.held, job)
	c.mu.Unlock()

	if !ok {
		return
	}
	c.metrics.SetLocksHeld(c.validCount())

	released, err := c.svc.Release(ctx, l)
	if err != nil {
		c.logger.Error("lock release failed", "job", job, "fence", l.Version, "error", err)
	} else if !released {
		c.logger.Warn("lock was no longer held at release", "job", job, "fence", l.Version)
	} else {
		c.logger.Info("lock released", "job", job, "fence", l.Version)
	}
	c.metrics.RecordRelease(job, err == nil && released)
	c.events.Publish(events.LockReleased, job, map[string]any{"fence": l.Version, "confirmed": err == nil && released})
}

// ReleaseAll releases every recorded lock. Used on shutdown.
func (c *Coordinator) ReleaseAll(ctx context.Context) {
	c.mu.RLock()
	jobs := make([]string, 0, len(c.held))
	for job := range c.held {
		jobs = append(jobs, job)
	}
	c.mu.RUnlock()

	for _, job := range jobs {
		c.Release(ctx, job)
	}
}

// Snapshot lists recorded locks sorted by job name, including expired ones.
func (c *Coordinator) Snapshot() []LockInfo {
	c.mu.RLock()
	out := make([]LockInfo, 0, len(c.held))
	for job, l := range c.held {
		out = append(out, LockInfo{
			Job:       job,
			Owner:     l.Owner,
			Fence:     l.Version,
			ExpiresAt: l.ExpiresAt(),
			Valid:     !l.IsExpired(),
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
