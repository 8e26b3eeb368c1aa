// Package lock provides distributed locking for serializing access to a
// booking slot across multiple service instances.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Common errors for distributed locking operations.
var (
	// ErrNotAcquired is returned when the lock could not be acquired
	// within the caller's wait timeout.
	ErrNotAcquired = errors.New("lock not acquired within wait timeout")

	// ErrCoordinator is returned when the lock coordinator itself is
	// unreachable or failing. Distinct from ErrNotAcquired so callers can
	// tell contention from an infrastructure fault.
	ErrCoordinator = errors.New("lock coordinator unavailable")
)

// Lock represents a successfully acquired lock. It is owned by exactly one
// caller and must be released by that caller.
type Lock interface {
	// Key returns the key this lock was acquired for.
	Key() string

	// Release releases the lock. It's safe to call Release more than once,
	// or after the lock has expired; both are no-ops.
	Release(ctx context.Context) error
}

// Locker grants at most one live Lock per key at any instant.
// Implementations must be safe for concurrent use.
type Locker interface {
	// Acquire blocks up to wait attempting to become the exclusive holder
	// of key. On success the lock expires automatically after ttl unless
	// released earlier. Returns ErrNotAcquired when the wait is exhausted,
	// or the underlying coordinator error when the coordinator is
	// unreachable. It never grants a lock on coordinator failure.
	Acquire(ctx context.Context, key string, wait, ttl time.Duration) (Lock, error)
}

// WithLock acquires key, runs fn, and releases the lock on every exit path,
// including a panic inside fn. When acquisition fails, fn is never invoked
// and the acquisition error is returned as-is so callers can distinguish
// ErrNotAcquired from a coordinator fault.
func WithLock(ctx context.Context, locker Locker, key string, wait, ttl time.Duration, fn func(ctx context.Context) error) error {
	l, err := locker.Acquire(ctx, key, wait, ttl)
	if err != nil {
		return err
	}

	defer func() {
		// Release even when the request context was cancelled mid-flight;
		// otherwise the key stays blocked until the TTL expires.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.Release(releaseCtx); err != nil {
			// fn's outcome already propagates to the caller; a failed
			// release only delays the next holder until the TTL, so log
			// it rather than overriding the result.
			zerolog.Ctx(ctx).Warn().Err(err).Str("lockKey", key).Msg("failed to release lock")
		}
	}()

	return fn(ctx)
}
