package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is an in-process implementation of Locker with the same
// semantics as RedisLocker: per-key exclusivity, TTL expiry, and a bounded
// wait. It backs tests and single-instance development setups; it does not
// coordinate across processes.
type MemoryLocker struct {
	mu            sync.Mutex
	entries       map[string]memoryEntry
	retryInterval time.Duration
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryLocker creates an in-memory Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		entries:       make(map[string]memoryEntry),
		retryInterval: 5 * time.Millisecond,
	}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (Lock, error) {
	value := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		if l.tryAcquire(key, value, ttl) {
			return &memoryLock{locker: l, key: key, value: value}, nil
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

func (l *MemoryLocker) tryAcquire(key, value string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, exists := l.entries[key]; exists && entry.expiresAt.After(now) {
		return false
	}

	l.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return true
}

func (l *MemoryLocker) release(key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Only delete if we still own the entry; a TTL-expired lock may have
	// been handed to another caller in the meantime.
	if entry, exists := l.entries[key]; exists && entry.value == value {
		delete(l.entries, key)
	}
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	value  string

	mu       sync.Mutex
	released bool
}

// Key implements Lock.
func (l *memoryLock) Key() string {
	return l.key
}

// Release implements Lock.
func (l *memoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}

	l.locker.release(l.key, l.value)
	l.released = true
	return nil
}
