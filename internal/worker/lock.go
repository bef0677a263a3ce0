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

// Locker grants exclusive ownership of a named job across instances. TryLock does
// not wait: acquired is false when another holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// RedisLocker implements Locker with a single-node Redlock mutex.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

func NewRedisLocker(client redis.UniversalClient, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = time.Minute
	}
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client)), expiry: expiry}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	mutex := l.rs.NewMutex(name, redsync.WithExpiry(l.expiry), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	release := func() {
		// The job may outlive ctx; release on a fresh context.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = mutex.UnlockContext(unlockCtx)
	}
	return release, true, nil
}
