package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/events"
)

var (
	// ErrLockLost aborts an execution whose job lock is no longer valid.
	ErrLockLost = errors.New("job lock lost")
	// ErrStaleFence aborts an execution started under an earlier acquisition
	// of the lock than the one currently held.
	ErrStaleFence = errors.New("fencing token is stale")
)

// Gate revalidates the job lock before every chunk.
type Gate struct {
	c *Coordinator
}

func NewGate(c *Coordinator) *Gate {
	return &Gate{c: c}
}

// BeforeChunk implements batch.ChunkListener. It never releases the lock.
func (g *Gate) BeforeChunk(_ context.Context, cc batch.ChunkContext) error {
	if !g.c.IsValid(cc.JobName) {
		g.abort(cc, "lock_lost")
		return fmt.Errorf("%w: %s before chunk %d of %s", ErrLockLost, cc.JobName, cc.Chunk, cc.StepName)
	}

	// Runs started outside the dispatch loop carry no fence.
	if cc.FencingToken == 0 {
		return nil
	}
	current, ok := g.c.Fence(cc.JobName)
	if !ok {
		g.abort(cc, "lock_lost")
		return fmt.Errorf("%w: %s before chunk %d of %s", ErrLockLost, cc.JobName, cc.Chunk, cc.StepName)
	}
	if current != cc.FencingToken {
		g.abort(cc, "stale_fence")
		return fmt.Errorf("%w: %s started under fence %d, lock now at %d", ErrStaleFence, cc.JobName, cc.FencingToken, current)
	}
	return nil
}

func (g *Gate) abort(cc batch.ChunkContext, reason string) {
	g.c.logger.Warn("aborting execution before chunk",
		"job", cc.JobName,
		"execution_id", cc.ExecutionID,
		"step", cc.StepName,
		"chunk", cc.Chunk,
		"fence", cc.FencingToken,
		"reason", reason,
	)
	g.c.metrics.RecordChunkAbort(cc.JobName, reason)
	g.c.events.Publish(events.ExecutionAborted, cc.JobName, map[string]any{
		"execution_id": cc.ExecutionID,
		"step":         cc.StepName,
		"chunk":        cc.Chunk,
		"reason":       reason,
	})
}

var _ batch.ChunkListener = (*Gate)(nil)
