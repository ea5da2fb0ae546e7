// Package metrics exposes coordination counters and gauges for Prometheus.
//
// All Record methods are safe on a nil *Collector so components can run
// without metrics wired.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lockstep"

// Lock acquisition outcomes.
const (
	AcquireOK          = "acquired"
	AcquireUnavailable = "unavailable"
	AcquireError       = "error"
)

// Dispatch tick outcomes.
const (
	TickDispatched      = "dispatched"
	TickLockUnavailable = "lock_unavailable"
	TickInFlight        = "in_flight"
	TickError           = "error"
)

type Collector struct {
	lockAcquire   *prometheus.CounterVec
	lockLost      *prometheus.CounterVec
	lockRelease   *prometheus.CounterVec
	locksHeld     prometheus.Gauge
	assignedJobs  prometheus.Gauge
	ticks         *prometheus.CounterVec
	reaped        *prometheus.CounterVec
	reapWait      *prometheus.HistogramVec
	chunkAborts   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	published     *prometheus.CounterVec
	stagedRecords *prometheus.CounterVec
}

// NewCollector builds the collector and registers it on reg.
// A nil reg leaves the metrics unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		lockAcquire: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Lock acquisition attempts by job and outcome.",
		}, []string{"job", "result"}),
		lockLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_lost_total",
			Help:      "Dispatch ticks that found the job's lock no longer valid.",
		}, []string{"job"}),
		lockRelease: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_release_total",
			Help:      "Lock releases by job and whether the lock service confirmed them.",
		}, []string{"job", "confirmed"}),
		locksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locks_held",
			Help:      "Job locks this instance holds with an unexpired lease.",
		}),
		assignedJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assigned_jobs",
			Help:      "Jobs assigned to this instance at startup.",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_ticks_total",
			Help:      "Dispatch ticks by job and outcome.",
		}, []string{"job", "outcome"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_executions_total",
			Help:      "Executions forced to stopped after the grace period.",
		}, []string{"job"}),
		reapWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reap_wait_seconds",
			Help:      "Time spent waiting for a running execution before reaping or giving up.",
			Buckets:   []float64{0, 2, 5, 10, 20, 30, 60},
		}, []string{"job"}),
		chunkAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_aborts_total",
			Help:      "Executions aborted before a chunk because the lock was invalid or stale.",
		}, []string{"job", "reason"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_finished_total",
			Help:      "Executions finished by job and final status.",
		}, []string{"job", "status"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Staged records published to the sink.",
		}, []string{"sink"}),
		stagedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_staged_total",
			Help:      "Records staged by source job.",
		}, []string{"job"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.lockAcquire, c.lockLost, c.lockRelease, c.locksHeld, c.assignedJobs,
			c.ticks, c.reaped, c.reapWait, c.chunkAborts, c.runsFinished,
			c.published, c.stagedRecords,
		)
	}
	return c
}

func (c *Collector) RecordAcquire(job, result string) {
	if c == nil {
		return
	}
	c.lockAcquire.WithLabelValues(job, result).Inc()
}

func (c *Collector) RecordLockLost(job string) {
	if c == nil {
		return
	}
	c.lockLost.WithLabelValues(job).Inc()
}

func (c *Collector) RecordRelease(job string, confirmed bool) {
	if c == nil {
		return
	}
	v := "false"
	if confirmed {
		v = "true"
	}
	c.lockRelease.WithLabelValues(job, v).Inc()
}

func (c *Collector) SetLocksHeld(n int) {
	if c == nil {
		return
	}
	c.locksHeld.Set(float64(n))
}

func (c *Collector) SetAssignedJobs(n int) {
	if c == nil {
		return
	}
	c.assignedJobs.Set(float64(n))
}

func (c *Collector) RecordTick(job, outcome string) {
	if c == nil {
		return
	}
	c.ticks.WithLabelValues(job, outcome).Inc()
}

func (c *Collector) RecordReaped(job string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.reaped.WithLabelValues(job).Add(float64(n))
}

func (c *Collector) ObserveReapWait(job string, seconds float64) {
	if c == nil {
		return
	}
	c.reapWait.WithLabelValues(job).Observe(seconds)
}

func (c *Collector) RecordChunkAbort(job, reason string) {
	if c == nil {
		return
	}
	c.chunkAborts.WithLabelValues(job, reason).Inc()
}

func (c *Collector) RecordExecutionFinished(job, status string) {
	if c == nil {
		return
	}
	c.runsFinished.WithLabelValues(job, status).Inc()
}

func (c *Collector) RecordPublished(sink string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.published.WithLabelValues(sink).Add(float64(n))
}

func (c *Collector) RecordStaged(job string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.stagedRecords.WithLabelValues(job).Add(float64(n))
}
