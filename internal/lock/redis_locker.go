package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRetryInterval is how often Acquire re-attempts SET NX while waiting.
const DefaultRetryInterval = 50 * time.Millisecond

// releaseScript atomically deletes the key only if we still own it,
// so an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLocker implements Locker using Redis SET NX with expiration.
// It is shared across processes: every instance pointing at the same Redis
// observes the same holder for a given key.
type RedisLocker struct {
	client        *redis.Client
	retryInterval time.Duration
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithRetryInterval sets how often Acquire polls for a contended key.
func WithRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		l.retryInterval = d
	}
}

// NewRedisLocker creates a Redis-backed Locker.
func NewRedisLocker(client *redis.Client, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:        client,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire implements Locker. Each attempt is a single SET key value NX PX;
// contended keys are retried until the wait deadline passes. A coordinator
// error aborts immediately rather than being retried, so an unreachable
// Redis degrades to "no one can book", never to "everyone can book".
func (l *RedisLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (Lock, error) {
	value := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		acquired, err := l.client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCoordinator, err)
		}
		if acquired {
			return &redisLock{client: l.client, key: key, value: value, held: true}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}

		pause := l.retryInterval
		if pause > remaining {
			pause = remaining
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// redisLock is a single acquired Redis lock. The unique value identifies this
// holder so Release cannot delete a lock that has expired and been reacquired.
type redisLock struct {
	client *redis.Client
	key    string
	value  string

	mu   sync.Mutex
	held bool
}

// Key implements Lock.
func (l *redisLock) Key() string {
	return l.key
}

// Release implements Lock using an atomic compare-and-delete.
func (l *redisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil // Already released, no-op
	}

	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int64(); err != nil {
		return fmt.Errorf("release lock %q: %w", l.key, err)
	}

	l.held = false
	return nil
}
