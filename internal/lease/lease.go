// Package lease provides time-bounded exclusive claims on job names.
//
// A Service hands out a *Lease for a key when no other owner holds it, and a
// background keeper renews every lease it handed out until the lease is
// released, lost to another owner, or observed as expired. Each successful
// acquisition carries a fencing Version that strictly increases per key, so a
// holder acting on a stale acquisition can be detected downstream.
//
// Backends: Memory (a MemoryStore shared between in-process owners), Redis and
// NATS JetStream key-value.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClosed          = errors.New("lease service closed")
	ErrInvalidDuration = errors.New("lease duration must be positive")
)

// Service is the lock service consumed by the coordinator.
type Service interface {
	// TryAcquire makes one non-blocking attempt. It returns (nil, nil) when
	// another owner currently holds key.
	TryAcquire(ctx context.Context, key string) (*Lease, error)
	// Release gives the lease back. It reports false when the lease was
	// already gone or owned by someone else.
	Release(ctx context.Context, l *Lease) (bool, error)
	Owner() string
	LeaseDuration() time.Duration
	Close() error
}

// Lease is a handle on a held key. Its local expiry only moves forward while
// it is still in the future, so once IsExpired reports true it stays true.
type Lease struct {
	Key     string
	Owner   string
	Version uint64

	token    string
	revision atomic.Uint64
	duration time.Duration
	expiry   atomic.Int64
	now      func() time.Time
}

// ExpiresAt is the local view of when the lease lapses without renewal.
func (l *Lease) ExpiresAt() time.Time {
	return time.Unix(0, l.expiry.Load())
}

// IsExpired reports whether the lease has lapsed locally.
func (l *Lease) IsExpired() bool {
	return !l.now().Before(l.ExpiresAt())
}

// extend pushes expiry to from+duration. It refuses once the lease has
// already lapsed.
func (l *Lease) extend(from time.Time) bool {
	next := from.Add(l.duration).UnixNano()
	for {
		cur := l.expiry.Load()
		if l.now().UnixNano() >= cur {
			return false
		}
		if next <= cur {
			return true
		}
		if l.expiry.CompareAndSwap(cur, next) {
			return true
		}
	}
}

func (l *Lease) String() string {
	return fmt.Sprintf("%s@%s#%d", l.Key, l.Owner, l.Version)
}

// Options configure any backend.
type Options struct {
	Owner           string
	LeaseDuration   time.Duration
	// HeartbeatPeriod is the renewal interval. Zero means a third of the
	// lease duration; negative disables background renewal.
	HeartbeatPeriod time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

func (o Options) withDefaults() (Options, error) {
	if o.LeaseDuration <= 0 {
		return o, ErrInvalidDuration
	}
	if o.Owner == "" {
		o.Owner = NewOwnerID()
	}
	if o.HeartbeatPeriod == 0 {
		o.HeartbeatPeriod = o.LeaseDuration / 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o, nil
}

// NewOwnerID returns an identity unique to this process: hostname plus a
// random suffix.
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return host + "-" + uuid.NewString()
}

func newToken(owner string) string {
	return owner + ":" + uuid.NewString()
}
