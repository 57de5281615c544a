package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker grants the relay exclusive use of the outbox for one batch. Row
// locks already keep concurrent relays correct; the lease only stops them
// from competing for the same rows.
type Locker interface {
	// TryLock never blocks. acquired is false when another holder owns the lease.
	TryLock(ctx context.Context) (unlock func(context.Context), acquired bool, err error)
}

// RedisLocker is a Locker backed by a single Redis key that expires on its own
// if the holder dies.
type RedisLocker struct {
	rs  *redsync.Redsync
	key string
	ttl time.Duration
}

// NewRedisLocker builds a lease named key lasting ttl.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		rs:  redsync.New(goredis.NewPool(client)),
		key: key,
		ttl: ttl,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(context.Context), bool, error) {
	mutex := l.rs.NewMutex(l.key, redsync.WithExpiry(l.ttl), redsync.WithTries(1))

	if err := mutex.TryLockContext(ctx); err != nil {
		if leaseContended(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire relay lease: %w", err)
	}

	return func(ctx context.Context) {
		_, _ = mutex.UnlockContext(ctx)
	}, true, nil
}

// leaseContended reports whether err means another holder owns the lease, as
// opposed to Redis being unreachable.
func leaseContended(err error) bool {
	var (
		taken     *redsync.ErrTaken
		nodeTaken *redsync.ErrNodeTaken
	)
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || errors.As(err, &nodeTaken)
}

// NoopLocker always grants the lease. It serves single-instance deployments
// without Redis.
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context) (func(context.Context), bool, error) {
	return func(context.Context) {}, true, nil
}
