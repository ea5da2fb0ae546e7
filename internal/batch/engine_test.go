package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listenerFunc func(ctx context.Context, cc ChunkContext) error

func (f listenerFunc) BeforeChunk(ctx context.Context, cc ChunkContext) error { return f(ctx, cc) }

func countingJob(name string, chunks int, calls *atomic.Int32) Job {
	return Job{
		Name: name,
		Steps: []Step{{
			Name: "work",
			Chunk: func(ctx context.Context, cc ChunkContext) (bool, error) {
				calls.Add(1)
				return cc.Chunk >= chunks, nil
			},
		}},
	}
}

func waitForFinish(t *testing.T, repo *Repository, id int64) *JobExecution {
	t.Helper()
	var got *JobExecution
	require.Eventually(t, func() bool {
		e, err := repo.GetExecution(context.Background(), id)
		if err != nil {
			return false
		}
		got = e
		return !e.Status.IsRunning()
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestEngineRunsChunksToCompletion(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	e := NewEngine(repo)

	var calls atomic.Int32
	require.NoError(t, e.Register(countingJob("trade-job", 3, &calls)))

	var seen []ChunkContext
	e.AddListener(listenerFunc(func(_ context.Context, cc ChunkContext) error {
		seen = append(seen, cc)
		return nil
	}))

	id, err := e.StartNextInstance(context.Background(), "trade-job", Tag{Owner: "node-a", FencingToken: 2})
	require.NoError(t, err)

	got := waitForFinish(t, repo, id)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, got.Steps, 1)
	assert.Equal(t, 3, got.Steps[0].ChunkCount)
	assert.Equal(t, StatusCompleted, got.Steps[0].Status)

	require.Eventually(t, func() bool { return e.Active() == 0 }, time.Second, 5*time.Millisecond)
	require.Len(t, seen, 3)
	assert.Equal(t, uint64(2), seen[0].FencingToken)
	assert.Equal(t, "node-a", seen[0].Owner)
}

func TestEngineListenerAbortsBeforeChunk(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	e := NewEngine(repo)

	var calls atomic.Int32
	require.NoError(t, e.Register(countingJob("price-job", 10, &calls)))

	lockLost := errors.New("job lock lost")
	e.AddListener(listenerFunc(func(_ context.Context, cc ChunkContext) error {
		if cc.Chunk == 3 {
			return lockLost
		}
		return nil
	}))

	id, err := e.StartNextInstance(context.Background(), "price-job", Tag{Owner: "node-a"})
	require.NoError(t, err)

	got := waitForFinish(t, repo, id)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.ExitMessage, "job lock lost")
	assert.Equal(t, int32(2), calls.Load(), "the third chunk must not start")
	assert.Equal(t, StatusFailed, got.Steps[0].Status)
}

func TestEngineRejectsSecondRunWhileRunning(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	e := NewEngine(repo)

	release := make(chan struct{})
	require.NoError(t, e.Register(Job{
		Name: "publisher-job",
		Steps: []Step{{Name: "publish", Chunk: func(ctx context.Context, _ ChunkContext) (bool, error) {
			<-release
			return true, nil
		}}},
	}))

	ctx := context.Background()
	id, err := e.StartNextInstance(ctx, "publisher-job", Tag{Owner: "node-a"})
	require.NoError(t, err)

	_, err = e.StartNextInstance(ctx, "publisher-job", Tag{Owner: "node-a"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	assert.Equal(t, StatusCompleted, waitForFinish(t, repo, id).Status)
}

func TestEngineUnknownJob(t *testing.T) {
	t.Parallel()
	e := NewEngine(openTestRepo(t))
	_, err := e.StartNextInstance(context.Background(), "nope", Tag{})
	assert.ErrorIs(t, err, ErrJobNotRegistered)
}

func TestEngineRegisterValidation(t *testing.T) {
	t.Parallel()
	e := NewEngine(openTestRepo(t))

	assert.Error(t, e.Register(Job{}))
	assert.Error(t, e.Register(Job{Name: "x"}))
	assert.Error(t, e.Register(Job{Name: "x", Steps: []Step{{Name: "s"}}}))

	var calls atomic.Int32
	require.NoError(t, e.Register(countingJob("x", 1, &calls)))
	assert.Error(t, e.Register(countingJob("x", 1, &calls)))
	assert.Equal(t, []string{"x"}, e.Jobs())
}

func TestEnginePanicMarksFailed(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	e := NewEngine(repo)
	require.NoError(t, e.Register(Job{
		Name: "monitoring-job",
		Steps: []Step{{Name: "report", Chunk: func(context.Context, ChunkContext) (bool, error) {
			panic("boom")
		}}},
	}))

	id, err := e.StartNextInstance(context.Background(), "monitoring-job", Tag{Owner: "node-a"})
	require.NoError(t, err)

	got := waitForFinish(t, repo, id)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.ExitMessage, "panic: boom")
}

func TestEngineShutdownCancelsAfterDeadline(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	e := NewEngine(repo)
	require.NoError(t, e.Register(Job{
		Name: "trade-job",
		Steps: []Step{{Name: "stage", Chunk: func(ctx context.Context, _ ChunkContext) (bool, error) {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(20 * time.Millisecond):
				return false, nil
			}
		}}},
	}))

	id, err := e.StartNextInstance(context.Background(), "trade-job", Tag{Owner: "node-a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = e.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := waitForFinish(t, repo, id)
	assert.Equal(t, StatusStopped, got.Status)

	_, err = e.StartNextInstance(context.Background(), "trade-job", Tag{Owner: "node-a"})
	assert.ErrorIs(t, err, ErrEngineShuttingDown)
}

func TestEngineShutdownWaitsForCompletion(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	e := NewEngine(repo)

	var calls atomic.Int32
	require.NoError(t, e.Register(countingJob("price-job", 2, &calls)))
	id, err := e.StartNextInstance(context.Background(), "price-job", Tag{Owner: "node-a"})
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(context.Background()))
	got, err := repo.GetExecution(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}
