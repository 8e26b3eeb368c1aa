// Package idempotency prevents duplicate processing of booking submissions.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Store defines the interface for idempotency key storage.
type Store interface {
	// CheckAndSet atomically checks if a key exists and sets it if not.
	// Returns true if the key was set (new request), false if it already
	// existed (duplicate). The key expires after ttl.
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Delete removes an idempotency key, typically used on request failure
	// to allow retries.
	Delete(ctx context.Context, key string) error
}

// entry is an idempotency key with its expiry.
type entry struct {
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of Store for testing and
// development. It cleans up expired entries in the background.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	stopCh  chan struct{}
}

// NewMemoryStore creates a new in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// CheckAndSet implements Store.
func (s *MemoryStore) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, exists := s.entries[key]; exists && e.expiresAt.After(now) {
		return false, nil // live key, duplicate request
	}

	s.entries[key] = entry{expiresAt: now.Add(ttl)}
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() {
	close(s.stopCh)
}

// Len returns the number of entries in the store (for testing).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if e.expiresAt.Before(now) {
			delete(s.entries, key)
		}
	}
}
