package drawing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store for testing and
// development.
type MemoryStore struct {
	mu       sync.RWMutex
	drawings map[int64][]*Drawing // keyed by student id, append order
}

// NewMemoryStore creates an empty in-memory drawing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drawings: make(map[int64][]*Drawing)}
}

// Add records a drawing submission for a student and returns it.
func (s *MemoryStore) Add(studentID int64, imageURL string) *Drawing {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := &Drawing{
		ID:        uuid.New(),
		StudentID: studentID,
		ImageURL:  imageURL,
		CreatedAt: time.Now(),
	}
	s.drawings[studentID] = append(s.drawings[studentID], d)
	return d
}

// LatestByStudent implements Store.
func (s *MemoryStore) LatestByStudent(ctx context.Context, studentID int64) (*Drawing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.drawings[studentID]
	if len(list) == 0 {
		return nil, ErrNoDrawing
	}
	return list[len(list)-1], nil
}
