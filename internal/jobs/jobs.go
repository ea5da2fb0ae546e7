// Package jobs holds the reference jobs the coordinator dispatches.
//
//   - trade-job and price-job stage synthetic records in chunks
//   - publisher-job drains staged records to the configured sink
//   - monitoring-job reports the locks this instance holds
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/config"
	"github.com/mattjoyce/lockstep/internal/coordinator"
	"github.com/mattjoyce/lockstep/internal/metrics"
	"github.com/mattjoyce/lockstep/internal/sink"
)

const (
	defaultBatchSize   = 10
	defaultStageChunks = 3
)

var symbols = []string{"ACME", "GLOBEX", "INITECH", "UMBRELLA", "HOOLI"}

// LockSnapshotter reports the locks this instance believes it holds.
type LockSnapshotter interface {
	Snapshot() []coordinator.LockInfo
}

type Deps struct {
	Store   *Store
	Sink    sink.Publisher
	Locks   LockSnapshotter
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// BatchSize is the records per chunk for staging and publishing.
	BatchSize int
	// StageChunks is how many chunks trade-job and price-job stage per run.
	StageChunks int
}

func (d *Deps) defaults() {
	if d.BatchSize <= 0 {
		d.BatchSize = defaultBatchSize
	}
	if d.StageChunks <= 0 {
		d.StageChunks = defaultStageChunks
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "jobs")
}

// Build returns the job definition for name.
func Build(name string, d Deps) (batch.Job, error) {
	d.defaults()
	switch name {
	case config.JobTrade:
		return stagingJob(name, "trade", d, tradePayload), nil
	case config.JobPrice:
		return stagingJob(name, "price", d, pricePayload), nil
	case config.JobPublisher:
		return publisherJob(d), nil
	case config.JobMonitoring:
		return monitoringJob(d), nil
	default:
		return batch.Job{}, fmt.Errorf("unknown job %q", name)
	}
}

// Register adds every named job to e.
func Register(e *batch.Engine, names []string, d Deps) error {
	for _, name := range names {
		job, err := Build(name, d)
		if err != nil {
			return err
		}
		if err := e.Register(job); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func tradePayload(cc batch.ChunkContext) any {
	return map[string]any{
		"symbol":       symbols[rand.IntN(len(symbols))],
		"qty":          1 + rand.IntN(500),
		"side":         []string{"buy", "sell"}[rand.IntN(2)],
		"execution_id": cc.ExecutionID,
		"fence":        cc.FencingToken,
	}
}

func pricePayload(cc batch.ChunkContext) any {
	return map[string]any{
		"symbol":       symbols[rand.IntN(len(symbols))],
		"price":        float64(1000+rand.IntN(9000)) / 100,
		"execution_id": cc.ExecutionID,
		"fence":        cc.FencingToken,
	}
}

func stagingJob(name, source string, d Deps, payload func(batch.ChunkContext) any) batch.Job {
	return batch.Job{
		Name: name,
		Steps: []batch.Step{{
			Name: "stage",
			Chunk: func(ctx context.Context, cc batch.ChunkContext) (bool, error) {
				records := make([]any, d.BatchSize)
				for i := range records {
					records[i] = payload(cc)
				}
				if err := d.Store.Stage(ctx, source, records); err != nil {
					return false, err
				}
				d.Metrics.RecordStaged(name, len(records))
				return cc.Chunk >= d.StageChunks, nil
			},
		}},
	}
}

func publisherJob(d Deps) batch.Job {
	return batch.Job{
		Name: config.JobPublisher,
		Steps: []batch.Step{{
			Name: "publish",
			Chunk: func(ctx context.Context, cc batch.ChunkContext) (bool, error) {
				records, err := d.Store.Unpublished(ctx, d.BatchSize)
				if err != nil {
					return false, err
				}
				if len(records) == 0 {
					return true, nil
				}
				if err := d.Sink.Publish(ctx, records); err != nil {
					return false, err
				}

				ids := make([]int64, len(records))
				for i, r := range records {
					ids[i] = r.ID
				}
				if err := d.Store.MarkPublished(ctx, ids); err != nil {
					return false, err
				}
				d.Metrics.RecordPublished(d.Sink.Name(), len(records))
				d.Logger.Debug("published chunk", "job", cc.JobName, "chunk", cc.Chunk, "records", len(records))
				return len(records) < d.BatchSize, nil
			},
		}},
	}
}

func monitoringJob(d Deps) batch.Job {
	return batch.Job{
		Name: config.JobMonitoring,
		Steps: []batch.Step{{
			Name: "report",
			Chunk: func(ctx context.Context, cc batch.ChunkContext) (bool, error) {
				held := 0
				for _, l := range d.Locks.Snapshot() {
					if l.Valid {
						held++
					}
					d.Logger.Info("lock status", "job", l.Job, "valid", l.Valid, "fence", l.Fence, "expires_at", l.ExpiresAt)
				}
				d.Metrics.SetLocksHeld(held)

				pending, err := d.Store.Pending(ctx)
				if err != nil {
					return false, err
				}
				d.Logger.Info("monitoring report", "locks_held", held, "pending_records", pending)
				return true, nil
			},
		}},
	}
}
