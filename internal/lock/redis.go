package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisManager implements Manager on a shared Redis instance via redsync,
// so coordinator instances on different machines contend on the same keys.
type RedisManager struct {
	client  redis.UniversalClient
	redsync *redsync.Redsync
	opts    Options
}

// NewRedisManager wraps an already-connected Redis client.
func NewRedisManager(client redis.UniversalClient, opts Options) *RedisManager {
	return &RedisManager{
		client:  client,
		redsync: redsync.New(goredis.NewPool(client)),
		opts:    opts.withDefaults(),
	}
}

// Acquire attempts to take the lease for key, retrying until the wait
// window is exhausted. The mutex expiry is the lease TTL: Redis reclaims
// the key on expiry regardless of what happened to the holder.
func (m *RedisManager) Acquire(ctx context.Context, key string) (Lease, bool, error) {
	tries := int(m.opts.WaitTimeout/m.opts.RetryDelay) + 1
	mutex := m.redsync.NewMutex(
		m.opts.KeyPrefix+key,
		redsync.WithExpiry(m.opts.LeaseTTL),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(m.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isContended(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire lock %q: %w", key, err)
	}

	return &redisLease{mutex: mutex}, true, nil
}

// Ping verifies the lock backend is reachable; used by the health probe.
func (m *RedisManager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func isContended(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken)
}

type redisLease struct {
	mutex *redsync.Mutex
}

// Release unlocks the mutex. A lease that already expired or was reclaimed
// counts as released; only transport faults surface as errors.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.mutex.UnlockContext(ctx); err != nil && !errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
