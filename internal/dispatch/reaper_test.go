package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/dispatch/mocks"
	"github.com/mattjoyce/lockstep/internal/storage"
)

// fakeSleep records requested sleeps without waiting.
type fakeSleep struct {
	calls []time.Duration
	err   error
}

func (s *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return s.err
}

var reapNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReaper(q ExecutionQuery, s *fakeSleep) *Reaper {
	return NewReaper(q, ReaperConfig{
		Grace:        10 * time.Second,
		PollInterval: 2 * time.Second,
		Sleep:        s.sleep,
		Now:          func() time.Time { return reapNow },
	})
}

func runningInstance(q *mocks.MockExecutionQuery) *gomock.Call {
	q.EXPECT().FindInstancesByName(gomock.Any(), testJob, 0, 1).
		Return([]*batch.JobInstance{{ID: 3, JobName: testJob}}, nil)
	return q.EXPECT().ExecutionsForInstance(gomock.Any(), int64(3)).
		Return([]*batch.JobExecution{{ID: 5, Status: batch.StatusRunning}}, nil)
}

func finishedInstance(q *mocks.MockExecutionQuery) *gomock.Call {
	q.EXPECT().FindInstancesByName(gomock.Any(), testJob, 0, 1).
		Return([]*batch.JobInstance{{ID: 3, JobName: testJob}}, nil)
	return q.EXPECT().ExecutionsForInstance(gomock.Any(), int64(3)).
		Return([]*batch.JobExecution{{ID: 5, Status: batch.StatusCompleted}}, nil)
}

func TestReapNothingRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockExecutionQuery(ctrl)
	q.EXPECT().FindInstancesByName(gomock.Any(), testJob, 0, 1).Return(nil, nil)

	s := &fakeSleep{}
	require.NoError(t, newTestReaper(q, s).Reap(context.Background(), testJob))
	assert.Empty(t, s.calls)
}

func TestReapExecutionFinishesWithinGrace(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockExecutionQuery(ctrl)
	gomock.InOrder(
		runningInstance(q),
		runningInstance(q),
		finishedInstance(q),
	)

	s := &fakeSleep{}
	require.NoError(t, newTestReaper(q, s).Reap(context.Background(), testJob))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, s.calls)
}

func TestReapForcesStopAfterGrace(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockExecutionQuery(ctrl)
	// One check before waiting plus one after each of the five polls.
	for range 6 {
		runningInstance(q)
	}

	steps := []*batch.StepExecution{
		{ID: 1, ExecutionID: 5, StepName: "load", Status: batch.StatusCompleted},
		{ID: 2, ExecutionID: 5, StepName: "publish", Status: batch.StatusRunning},
		{ID: 3, ExecutionID: 5, StepName: "ack", Status: batch.StatusStopping},
	}
	q.EXPECT().FindRunningExecutions(gomock.Any(), testJob).Return([]*batch.JobExecution{
		{ID: 5, JobName: testJob, Owner: "node-dead", FencingToken: 2, Status: batch.StatusRunning, Steps: steps},
	}, nil)

	var stoppedSteps []int64
	q.EXPECT().UpdateStepExecution(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *batch.StepExecution) error {
			assert.Equal(t, batch.StatusStopped, s.Status)
			require.NotNil(t, s.EndTime)
			assert.Equal(t, reapNow, *s.EndTime)
			stoppedSteps = append(stoppedSteps, s.ID)
			return nil
		}).Times(2)
	q.EXPECT().UpdateJobExecution(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e *batch.JobExecution) error {
			assert.Equal(t, int64(5), e.ID)
			assert.Equal(t, batch.StatusStopped, e.Status)
			require.NotNil(t, e.EndTime)
			return nil
		}).Times(1)

	s := &fakeSleep{}
	require.NoError(t, newTestReaper(q, s).Reap(context.Background(), testJob))
	assert.Len(t, s.calls, 5)
	assert.Equal(t, []int64{2, 3}, stoppedSteps)
	assert.Equal(t, batch.StatusCompleted, steps[0].Status)
}

func TestReapStopsWaitingOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockExecutionQuery(ctrl)
	runningInstance(q)

	s := &fakeSleep{err: context.Canceled}
	err := newTestReaper(q, s).Reap(context.Background(), testJob)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReapJoinsUpdateErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockExecutionQuery(ctrl)
	q.EXPECT().FindInstancesByName(gomock.Any(), testJob, 0, 1).
		Return([]*batch.JobInstance{{ID: 3}}, nil).AnyTimes()
	q.EXPECT().ExecutionsForInstance(gomock.Any(), int64(3)).
		Return([]*batch.JobExecution{{ID: 5, Status: batch.StatusRunning}, {ID: 6, Status: batch.StatusRunning}}, nil).AnyTimes()
	q.EXPECT().FindRunningExecutions(gomock.Any(), testJob).Return([]*batch.JobExecution{
		{ID: 5, Status: batch.StatusRunning},
		{ID: 6, Status: batch.StatusRunning},
	}, nil)
	q.EXPECT().UpdateJobExecution(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e *batch.JobExecution) error {
			if e.ID == 5 {
				return batch.ErrExecutionNotFound
			}
			return nil
		}).Times(2)

	err := newTestReaper(q, &fakeSleep{}).Reap(context.Background(), testJob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, batch.ErrExecutionNotFound))
}

func TestSleepContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func TestReapAgainstSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := batch.NewRepository(db)

	exec, err := repo.CreateRun(ctx, testJob, batch.Tag{Owner: "node-dead", FencingToken: 1})
	require.NoError(t, err)
	step, err := repo.CreateStepExecution(ctx, exec.ID, "load")
	require.NoError(t, err)

	r := NewReaper(repo, ReaperConfig{Grace: 0, Sleep: (&fakeSleep{}).sleep})
	require.NoError(t, r.Reap(ctx, testJob))

	got, err := repo.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusStopped, got.Status)
	assert.NotNil(t, got.EndTime)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, step.ID, got.Steps[0].ID)
	assert.Equal(t, batch.StatusStopped, got.Steps[0].Status)

	// The abandoned owner's late completion no longer applies.
	applied, err := repo.FinishExecution(ctx, exec.ID, batch.StatusCompleted, "")
	require.NoError(t, err)
	assert.False(t, applied)

	// A new run can start now.
	_, err = repo.CreateRun(ctx, testJob, batch.Tag{Owner: "node-b", FencingToken: 2})
	require.NoError(t, err)
}
