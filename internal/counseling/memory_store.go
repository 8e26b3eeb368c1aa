package counseling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store for testing and
// development. It mirrors the PostgresStore semantics, including the
// uniqueness of the (counselor, minute-precision time) slot.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Counseling
	slots map[string]uuid.UUID // slot key -> session id
}

// NewMemoryStore creates an empty in-memory counseling store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]*Counseling),
		slots: make(map[string]uuid.UUID),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, c *Counseling) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := SlotKey(c.CounselorID, c.ReservationTime)
	if _, taken := s.slots[key]; taken {
		return ErrAlreadyReserved
	}

	stored := *c
	s.byID[c.ID] = &stored
	s.slots[key] = c.ID
	return nil
}

// ExistsSlot implements Store.
func (s *MemoryStore) ExistsSlot(ctx context.Context, counselorID int64, t time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, taken := s.slots[SlotKey(counselorID, t)]
	return taken, nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Counseling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

// ListByStudent implements Store.
func (s *MemoryStore) ListByStudent(ctx context.Context, studentID int64) ([]*Counseling, error) {
	return s.list(func(c *Counseling) bool { return c.StudentID == studentID }), nil
}

// ListByCounselor implements Store.
func (s *MemoryStore) ListByCounselor(ctx context.Context, counselorID int64) ([]*Counseling, error) {
	return s.list(func(c *Counseling) bool { return c.CounselorID == counselorID }), nil
}

func (s *MemoryStore) list(match func(*Counseling) bool) []*Counseling {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Counseling
	for _, c := range s.byID {
		if match(c) {
			copied := *c
			list = append(list, &copied)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ReservationTime.Before(list[j].ReservationTime)
	})
	return list
}

// NextOpenByStudent implements Store.
func (s *MemoryStore) NextOpenByStudent(ctx context.Context, studentID int64) (*Counseling, error) {
	return s.nextOpen(func(c *Counseling) bool { return c.StudentID == studentID })
}

// NextOpenByCounselor implements Store.
func (s *MemoryStore) NextOpenByCounselor(ctx context.Context, counselorID int64) (*Counseling, error) {
	return s.nextOpen(func(c *Counseling) bool { return c.CounselorID == counselorID })
}

func (s *MemoryStore) nextOpen(match func(*Counseling) bool) (*Counseling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *Counseling
	for _, c := range s.byID {
		if c.Status != StatusOpen || !match(c) {
			continue
		}
		if next == nil || c.ReservationTime.Before(next.ReservationTime) {
			next = c
		}
	}
	if next == nil {
		return nil, ErrNotFound
	}
	copied := *next
	return &copied, nil
}

// CloseOverdue implements Store.
func (s *MemoryStore) CloseOverdue(ctx context.Context, threshold time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed int64
	for _, c := range s.byID {
		if c.Status == StatusOpen && c.ReservationTime.Before(threshold) {
			c.Status = StatusClosed
			closed++
		}
	}
	return closed, nil
}
