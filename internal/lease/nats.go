package lease

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS is a Service backed by a JetStream key-value bucket. The stream
// sequence of the creating write is the fence, and renewals are
// compare-and-set updates against the last revision this owner wrote.
type NATS struct {
	*keeper
	kv nats.KeyValue
}

// NewNATS binds to bucket, creating it with a TTL of one lease duration so
// keys of a dead owner age out on their own.
func NewNATS(js nats.JetStreamContext, bucket string, opts Options) (*NATS, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "lockstep job leases",
			History:     1,
			TTL:         opts.LeaseDuration,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind lease bucket %s: %w", bucket, err)
	}

	n := &NATS{kv: kv}
	n.keeper = newKeeper(n, opts, "nats")
	return n, nil
}

// The nats.go KeyValue API takes no context; calls are bounded by the
// connection's request timeout instead.

func (n *NATS) acquire(_ context.Context, key, token string) (uint64, uint64, bool, error) {
	rev, err := n.kv.Create(key, []byte(token))
	if err == nil {
		return rev, rev, true, nil
	}
	if errors.Is(err, nats.ErrKeyExists) {
		return 0, 0, false, nil
	}
	if _, gerr := n.kv.Get(key); gerr == nil {
		return 0, 0, false, nil
	}
	return 0, 0, false, err
}

func (n *NATS) renew(_ context.Context, l *Lease) (bool, error) {
	rev, err := n.kv.Update(l.Key, []byte(l.token), l.revision.Load())
	if err == nil {
		l.revision.Store(rev)
		return true, nil
	}
	return n.classify(l, err)
}

func (n *NATS) release(_ context.Context, l *Lease) (bool, error) {
	err := n.kv.Delete(l.Key, nats.LastRevision(l.revision.Load()))
	if err == nil {
		return true, nil
	}
	return n.classify(l, err)
}

// classify turns a failed conditional write into "lost" when the key is gone
// or carries someone else's token, and into an error otherwise.
func (n *NATS) classify(l *Lease, cause error) (bool, error) {
	entry, err := n.kv.Get(l.Key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return false, nil
	}
	if err == nil && string(entry.Value()) != l.token {
		return false, nil
	}
	return false, cause
}
