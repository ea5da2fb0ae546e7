package lease

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// backend is the storage-specific half of a Service.
type backend interface {
	// acquire claims key with token. ok is false when another owner holds it.
	acquire(ctx context.Context, key, token string) (version, revision uint64, ok bool, err error)
	renew(ctx context.Context, l *Lease) (bool, error)
	release(ctx context.Context, l *Lease) (bool, error)
}

// keeper implements Service on top of a backend and renews held leases.
type keeper struct {
	b    backend
	opts Options

	mu     sync.Mutex
	held   map[string]*Lease
	closed bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newKeeper(b backend, opts Options, name string) *keeper {
	opts.Logger = opts.Logger.With("component", "lease", "backend", name, "owner", opts.Owner)
	k := &keeper{
		b:    b,
		opts: opts,
		held: make(map[string]*Lease),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if opts.HeartbeatPeriod > 0 {
		go k.heartbeat()
	} else {
		close(k.done)
	}
	return k
}

func (k *keeper) Owner() string                { return k.opts.Owner }
func (k *keeper) LeaseDuration() time.Duration { return k.opts.LeaseDuration }

func (k *keeper) TryAcquire(ctx context.Context, key string) (*Lease, error) {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	// Measure from before the round trip so the local view never outlives
	// the remote one.
	start := k.opts.Now()
	token := newToken(k.opts.Owner)
	version, revision, ok, err := k.b.acquire(ctx, key, token)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	l := &Lease{
		Key:      key,
		Owner:    k.opts.Owner,
		Version:  version,
		token:    token,
		duration: k.opts.LeaseDuration,
		now:      k.opts.Now,
	}
	l.revision.Store(revision)
	l.expiry.Store(start.Add(k.opts.LeaseDuration).UnixNano())

	k.mu.Lock()
	k.held[key] = l
	k.mu.Unlock()

	k.opts.Logger.Debug("lease acquired", "key", key, "fence", version)
	return l, nil
}

func (k *keeper) Release(ctx context.Context, l *Lease) (bool, error) {
	if l == nil {
		return false, nil
	}
	k.forget(l)
	ok, err := k.b.release(ctx, l)
	if err != nil {
		return false, fmt.Errorf("release %s: %w", l.Key, err)
	}
	return ok, nil
}

// Close stops renewal. Held leases are left to expire.
func (k *keeper) Close() error {
	k.closeOnce.Do(func() {
		k.mu.Lock()
		k.closed = true
		k.mu.Unlock()
		close(k.stop)
	})
	<-k.done
	return nil
}

// RenewAll runs one renewal pass over every held lease.
func (k *keeper) RenewAll(ctx context.Context) {
	k.mu.Lock()
	leases := make([]*Lease, 0, len(k.held))
	for _, l := range k.held {
		leases = append(leases, l)
	}
	k.mu.Unlock()

	for _, l := range leases {
		k.renewOne(ctx, l)
	}
}

func (k *keeper) renewOne(ctx context.Context, l *Lease) {
	logger := k.opts.Logger.With("key", l.Key, "fence", l.Version)
	if l.IsExpired() {
		k.forget(l)
		logger.Warn("lease expired before renewal")
		return
	}

	start := k.opts.Now()
	ok, err := k.b.renew(ctx, l)
	if err != nil {
		// Keep trying on the next beat; local expiry bounds how long this
		// can go on.
		logger.Warn("lease renewal failed", "error", err)
		return
	}
	if !ok {
		k.forget(l)
		logger.Warn("lease lost to another owner")
		return
	}
	if !l.extend(start) {
		k.forget(l)
		logger.Warn("lease expired during renewal")
		return
	}
	logger.Debug("lease renewed", "expires_at", l.ExpiresAt())
}

func (k *keeper) forget(l *Lease) {
	k.mu.Lock()
	if k.held[l.Key] == l {
		delete(k.held, l.Key)
	}
	k.mu.Unlock()
}

func (k *keeper) heartbeat() {
	defer close(k.done)

	ticker := time.NewTicker(k.opts.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), k.opts.HeartbeatPeriod)
			k.RenewAll(ctx)
			cancel()
		}
	}
}
