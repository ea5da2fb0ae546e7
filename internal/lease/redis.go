package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claim the lock key and bump the per-key fence in one step.
var acquireScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return redis.call("INCR", KEYS[2])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Service backed by a Redis server. Fence counters are never
// expired so versions keep increasing across owners.
type Redis struct {
	*keeper
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, opts Options) (*Redis, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.LeaseDuration < time.Millisecond {
		return nil, fmt.Errorf("%w: redis needs at least 1ms", ErrInvalidDuration)
	}
	r := &Redis{client: client, prefix: prefix, ttl: opts.LeaseDuration}
	r.keeper = newKeeper(r, opts, "redis")
	return r, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) lockKey(key string) string  { return r.prefix + "lock:" + key }
func (r *Redis) fenceKey(key string) string { return r.prefix + "fence:" + key }

func (r *Redis) acquire(ctx context.Context, key, token string) (uint64, uint64, bool, error) {
	n, err := acquireScript.Run(ctx, r.client,
		[]string{r.lockKey(key), r.fenceKey(key)},
		token, r.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, 0, false, err
	}
	if n <= 0 {
		return 0, 0, false, nil
	}
	return uint64(n), 0, true, nil
}

func (r *Redis) renew(ctx context.Context, l *Lease) (bool, error) {
	n, err := renewScript.Run(ctx, r.client, []string{r.lockKey(l.Key)}, l.token, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) release(ctx context.Context, l *Lease) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client, []string{r.lockKey(l.Key)}, l.token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
