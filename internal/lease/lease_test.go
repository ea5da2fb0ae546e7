package lease

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMemory(t *testing.T, store *MemoryStore, clock *fakeClock, owner string) *Memory {
	t.Helper()
	m, err := NewMemory(store, Options{
		Owner:           owner,
		LeaseDuration:   10 * time.Second,
		HeartbeatPeriod: -1,
		Now:             clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemoryMutualExclusion(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)

	const instances = 16
	services := make([]*Memory, instances)
	for i := range services {
		services[i] = newMemory(t, store, clock, "node-"+string(rune('a'+i)))
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, svc := range services {
		wg.Add(1)
		go func(svc *Memory) {
			defer wg.Done()
			<-start
			l, err := svc.TryAcquire(context.Background(), "trade-job")
			if err == nil && l != nil {
				wins.Add(1)
			}
		}(svc)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestLeaseExpiresWithoutRenewal(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	a := newMemory(t, store, clock, "a")
	b := newMemory(t, store, clock, "b")
	ctx := context.Background()

	l, err := a.TryAcquire(ctx, "price-job")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, uint64(1), l.Version)
	assert.Equal(t, "a", l.Owner)
	assert.False(t, l.IsExpired())

	clock.Advance(9 * time.Second)
	assert.False(t, l.IsExpired())
	other, err := b.TryAcquire(ctx, "price-job")
	require.NoError(t, err)
	assert.Nil(t, other, "live lease must not be granted twice")

	clock.Advance(time.Second)
	assert.True(t, l.IsExpired())

	// A late renewal pass cannot resurrect it.
	a.RenewAll(ctx)
	assert.True(t, l.IsExpired())

	taken, err := b.TryAcquire(ctx, "price-job")
	require.NoError(t, err)
	require.NotNil(t, taken)
	assert.Equal(t, uint64(2), taken.Version)
}

func TestRenewAllExtendsLease(t *testing.T) {
	clock := newFakeClock()
	a := newMemory(t, NewMemoryStore(clock.Now), clock, "a")
	ctx := context.Background()

	l, err := a.TryAcquire(ctx, "monitoring-job")
	require.NoError(t, err)
	require.NotNil(t, l)
	start := clock.Now()

	clock.Advance(5 * time.Second)
	a.RenewAll(ctx)
	assert.WithinDuration(t, start.Add(15*time.Second), l.ExpiresAt(), 0)

	clock.Advance(6 * time.Second)
	assert.False(t, l.IsExpired(), "renewed lease should outlive its first duration")
}

func TestExtendRefusesExpiredLease(t *testing.T) {
	clock := newFakeClock()
	l := &Lease{Key: "k", duration: 10 * time.Second, now: clock.Now}
	l.expiry.Store(clock.Now().Add(time.Second).UnixNano())

	assert.True(t, l.extend(clock.Now()))
	clock.Advance(11 * time.Second)
	assert.False(t, l.extend(clock.Now()))
	assert.True(t, l.IsExpired())
}

func TestReleaseAllowsReacquire(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	a := newMemory(t, store, clock, "a")
	b := newMemory(t, store, clock, "b")
	ctx := context.Background()

	l, err := a.TryAcquire(ctx, "publisher-job")
	require.NoError(t, err)

	ok, err := a.Release(ctx, l)
	require.NoError(t, err)
	assert.True(t, ok)

	_, held := store.Holder("publisher-job")
	assert.False(t, held)

	taken, err := b.TryAcquire(ctx, "publisher-job")
	require.NoError(t, err)
	require.NotNil(t, taken)
	assert.Equal(t, uint64(2), taken.Version)

	ok, err = a.Release(ctx, l)
	require.NoError(t, err)
	assert.False(t, ok, "stale handle must not release the new owner's lease")
}

func TestClosedServiceRefusesAcquire(t *testing.T) {
	clock := newFakeClock()
	a := newMemory(t, nil, clock, "a")
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.TryAcquire(context.Background(), "trade-job")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestBackgroundHeartbeatKeepsLease(t *testing.T) {
	m, err := NewMemory(nil, Options{
		Owner:           "hb",
		LeaseDuration:   300 * time.Millisecond,
		HeartbeatPeriod: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer m.Close()

	l, err := m.TryAcquire(context.Background(), "price-job")
	require.NoError(t, err)
	require.NotNil(t, l)

	time.Sleep(700 * time.Millisecond)
	assert.False(t, l.IsExpired())
}

func TestOptionsDefaults(t *testing.T) {
	_, err := NewMemory(nil, Options{})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	m, err := NewMemory(nil, Options{LeaseDuration: 9 * time.Second, HeartbeatPeriod: -1})
	require.NoError(t, err)
	defer m.Close()
	assert.NotEmpty(t, m.Owner())
	assert.Equal(t, 9*time.Second, m.LeaseDuration())
}

func TestNewOwnerIDIsUnique(t *testing.T) {
	a, b := NewOwnerID(), NewOwnerID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.Count(a, "-") >= 5, "expected hostname plus uuid, got %q", a)
}
