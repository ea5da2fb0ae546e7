// Package doctor reviews a loaded lockstep configuration for settings that
// parse but are unlikely to behave well, and optionally probes backends.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mattjoyce/lockstep/internal/config"
	"github.com/mattjoyce/lockstep/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid       bool    `json:"valid"`
	Fingerprint string  `json:"fingerprint"`
	Errors      []Issue `json:"errors,omitempty"`
	Warnings    []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Probe is a named connectivity check run by Validate.
type Probe struct {
	Name string
	Run  func(ctx context.Context) error
}

// Doctor validates configuration and backend reachability.
type Doctor struct {
	cfg    *config.Config
	probes []Probe

	checkFS func(path string) (string, error)
}

func New(cfg *config.Config, probes ...Probe) *Doctor {
	return &Doctor{cfg: cfg, probes: probes, checkFS: storage.CheckLocalFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true, Fingerprint: d.cfg.Fingerprint()}

	d.checkLease(r)
	d.checkCapacity(r)
	d.checkJobs(r)
	d.checkState(r)
	d.checkAPI(r)
	d.runProbes(ctx, r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkLease flags timings that leave renewals or reaping with no margin.
func (d *Doctor) checkLease(r *Result) {
	lease := d.cfg.Lock.LeaseDuration
	if hb := d.cfg.Lock.HeartbeatPeriod; hb*2 > lease {
		d.addWarning(r, "lease", "lock.heartbeat_period",
			fmt.Sprintf("heartbeat %s allows at most one renewal attempt per %s lease", hb, lease))
	}

	grace := d.cfg.EffectiveReapGrace()
	if grace < lease {
		d.addWarning(r, "reaper", "dispatch.reap_grace",
			fmt.Sprintf("grace %s is shorter than the lease %s; a live holder may be reaped", grace, lease))
	}
	if poll := d.cfg.Dispatch.ReapPollInterval; poll > grace {
		d.addWarning(r, "reaper", "dispatch.reap_poll_interval",
			fmt.Sprintf("poll interval %s exceeds the grace period %s", poll, grace))
	}
	if drain := d.cfg.Dispatch.ShutdownDrain; drain < grace {
		d.addWarning(r, "shutdown", "dispatch.shutdown_drain",
			fmt.Sprintf("drain %s is shorter than the reap grace %s; a reaping tick may be cut off", drain, grace))
	}
	if d.cfg.Lock.Backend == "memory" {
		d.addWarning(r, "lease", "lock.backend",
			"memory backend only coordinates within one process")
	}
}

func (d *Doctor) checkCapacity(r *Result) {
	tokens := d.cfg.Instance.Tokens
	switch {
	case tokens == 0:
		d.addWarning(r, "capacity", "instance.tokens", "tokens is 0; this instance will never run a job")
	case tokens > len(d.cfg.Jobs):
		d.addWarning(r, "capacity", "instance.tokens",
			fmt.Sprintf("tokens %d exceeds the %d configured jobs", tokens, len(d.cfg.Jobs)))
	}
	if d.cfg.Dispatch.PoolSize < tokens {
		d.addWarning(r, "capacity", "dispatch.pool_size",
			fmt.Sprintf("pool size %d is below tokens %d; ticks will queue for a worker", d.cfg.Dispatch.PoolSize, tokens))
	}
}

var knownJobs = []string{config.JobMonitoring, config.JobPublisher, config.JobTrade, config.JobPrice}

func (d *Doctor) checkJobs(r *Result) {
	if len(d.cfg.Jobs) == 0 {
		d.addWarning(r, "jobs", "jobs", "no jobs configured")
	}
	for i, name := range d.cfg.Jobs {
		if !slices.Contains(knownJobs, name) {
			d.addError(r, "jobs", fmt.Sprintf("jobs[%d]", i),
				fmt.Sprintf("unknown job %q (known: %s)", name, strings.Join(knownJobs, ", ")))
		}
	}
	if slices.Contains(d.cfg.Jobs, config.JobPublisher) &&
		!slices.Contains(d.cfg.Jobs, config.JobTrade) && !slices.Contains(d.cfg.Jobs, config.JobPrice) {
		d.addWarning(r, "jobs", "jobs", "publisher-job has no staging job to feed it")
	}
}

func (d *Doctor) checkState(r *Result) {
	if _, err := d.checkFS(d.cfg.State.Path); err != nil {
		if errors.Is(err, storage.ErrNetworkFilesystem) {
			d.addError(r, "state", "state.path", err.Error())
			return
		}
		d.addWarning(r, "state", "state.path", fmt.Sprintf("could not verify filesystem: %v", err))
	}
}

func (d *Doctor) checkAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.api_key", "API enabled without an api_key; every route is open")
	}
}

func (d *Doctor) runProbes(ctx context.Context, r *Result) {
	for _, p := range d.probes {
		if err := p.Run(ctx); err != nil {
			d.addError(r, "backend", p.Name, fmt.Sprintf("probe failed: %v", err))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}
	fmt.Fprintf(&b, "  fingerprint %s\n", r.Fingerprint)

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
