package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/dispatch/mocks"
)

const testJob = "trade-job"

type loopFixture struct {
	locks    *mocks.MockLockCoordinator
	query    *mocks.MockExecutionQuery
	launcher *mocks.MockLauncher
	reaper   *mocks.MockRunReaper
	logs     *bytes.Buffer
	loop     *Loop
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &loopFixture{
		locks:    mocks.NewMockLockCoordinator(ctrl),
		query:    mocks.NewMockExecutionQuery(ctrl),
		launcher: mocks.NewMockLauncher(ctrl),
		reaper:   mocks.NewMockRunReaper(ctrl),
		logs:     &bytes.Buffer{},
	}
	f.loop = NewLoop(LoopConfig{
		Job:      testJob,
		Locks:    f.locks,
		Query:    f.query,
		Launcher: f.launcher,
		Reaper:   f.reaper,
		Logger:   slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return f
}

func (f *loopFixture) expectNothingRunning() {
	f.query.EXPECT().FindInstancesByName(gomock.Any(), testJob, 0, 1).Return(nil, nil)
}

func (f *loopFixture) expectRunning() {
	f.query.EXPECT().FindInstancesByName(gomock.Any(), testJob, 0, 1).
		Return([]*batch.JobInstance{{ID: 9, JobName: testJob}}, nil)
	f.query.EXPECT().ExecutionsForInstance(gomock.Any(), int64(9)).
		Return([]*batch.JobExecution{{ID: 11, Status: batch.StatusRunning}}, nil)
}

func TestTickSkipsWhenLockCannotBeReacquired(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(false)
	f.locks.EXPECT().Acquire(gomock.Any(), testJob).Return(false)

	require.NoError(t, f.loop.Tick(context.Background()))
	assert.Zero(t, f.loop.LastExecutionID())
	assert.Contains(t, f.logs.String(), "lock held elsewhere; skipping tick")
}

func TestTickSkipsWhileExecutionRunning(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true)
	f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil)
	f.expectRunning()

	require.NoError(t, f.loop.Tick(context.Background()))
	assert.Zero(t, f.loop.LastExecutionID())
}

func TestTickStartsExactlyOneInstance(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true)
	f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil)
	f.expectNothingRunning()
	f.locks.EXPECT().Fence(testJob).Return(uint64(7), true)
	f.locks.EXPECT().Owner().Return("node-a")
	f.launcher.EXPECT().
		StartNextInstance(gomock.Any(), testJob, batch.Tag{Owner: "node-a", FencingToken: 7}).
		Return(int64(42), nil).
		Times(1)

	require.NoError(t, f.loop.Tick(context.Background()))
	assert.Equal(t, int64(42), f.loop.LastExecutionID())
	assert.Contains(t, f.logs.String(), `"msg":"job triggered"`)
}

func TestTickSkipsWhenLockExpiresDuringReap(t *testing.T) {
	f := newLoopFixture(t)
	gomock.InOrder(
		f.locks.EXPECT().IsValid(testJob).Return(true),
		f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil),
		f.locks.EXPECT().Fence(testJob).Return(uint64(0), false),
	)
	f.expectNothingRunning()
	f.launcher.EXPECT().StartNextInstance(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	require.NoError(t, f.loop.Tick(context.Background()))
	assert.Zero(t, f.loop.LastExecutionID())
	assert.Contains(t, f.logs.String(), "lock expired before dispatch; skipping tick")
}

func TestTickReapsOnlyOnActivation(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true).Times(2)
	f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil).Times(1)
	f.expectRunning()
	f.expectRunning()

	require.NoError(t, f.loop.Tick(context.Background()))
	require.NoError(t, f.loop.Tick(context.Background()))
}

func TestTickReapsAgainAfterReacquisition(t *testing.T) {
	f := newLoopFixture(t)
	gomock.InOrder(
		f.locks.EXPECT().IsValid(testJob).Return(true),
		f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil),
	)
	f.expectRunning()
	require.NoError(t, f.loop.Tick(context.Background()))

	gomock.InOrder(
		f.locks.EXPECT().IsValid(testJob).Return(false),
		f.locks.EXPECT().Acquire(gomock.Any(), testJob).Return(true),
		f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil),
	)
	f.expectRunning()
	require.NoError(t, f.loop.Tick(context.Background()))
}

func TestTickRetriesReapAfterFailure(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true).Times(2)
	gomock.InOrder(
		f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(errors.New("store unavailable")),
		f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil),
	)

	err := f.loop.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reap abandoned runs")

	f.expectRunning()
	require.NoError(t, f.loop.Tick(context.Background()))
}

func TestTickTreatsConcurrentStartAsInFlight(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true)
	f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil)
	f.expectNothingRunning()
	f.locks.EXPECT().Fence(testJob).Return(uint64(3), true)
	f.locks.EXPECT().Owner().Return("node-a")
	f.launcher.EXPECT().StartNextInstance(gomock.Any(), testJob, gomock.Any()).
		Return(int64(0), fmt.Errorf("%w: %s", batch.ErrAlreadyRunning, testJob))

	require.NoError(t, f.loop.Tick(context.Background()))
	assert.Zero(t, f.loop.LastExecutionID())
}

func TestTickSurfacesQueryErrors(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true)
	f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(nil)
	f.query.EXPECT().FindInstancesByName(gomock.Any(), testJob, 0, 1).Return(nil, errors.New("disk I/O error"))

	err := f.loop.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check in-flight run")
}

func TestRunLogsTickErrors(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true)
	f.reaper.EXPECT().Reap(gomock.Any(), testJob).Return(context.Canceled)

	f.loop.Run(context.Background())
	assert.Contains(t, f.logs.String(), "dispatch tick failed")
}

func TestRunRecoversPanics(t *testing.T) {
	f := newLoopFixture(t)
	f.locks.EXPECT().IsValid(testJob).Return(true)
	f.reaper.EXPECT().Reap(gomock.Any(), testJob).DoAndReturn(func(context.Context, string) error {
		panic("boom")
	})

	assert.NotPanics(t, func() { f.loop.Run(context.Background()) })
	assert.Contains(t, f.logs.String(), "dispatch tick panicked")

	// The mutex must have been released by the panicking tick.
	f.locks.EXPECT().IsValid(testJob).Return(false)
	f.locks.EXPECT().Acquire(gomock.Any(), testJob).Return(false)
	require.NoError(t, f.loop.Tick(context.Background()))
}
