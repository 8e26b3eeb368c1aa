package user

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory is an in-memory implementation of Directory for testing
// and development.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[int64]*User
	byEmail map[string]*User
	nextID  int64
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[int64]*User),
		byEmail: make(map[string]*User),
	}
}

// Add registers a user, assigning an id when none is set, and returns it.
func (d *MemoryDirectory) Add(u *User) *User {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID == 0 {
		d.nextID++
		u.ID = d.nextID
	}
	d.byID[u.ID] = u
	d.byEmail[u.Email] = u
	return u
}

// ByEmail implements Directory.
func (d *MemoryDirectory) ByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

// ByID implements Directory.
func (d *MemoryDirectory) ByID(ctx context.Context, id int64) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

// CounselorsBySchool implements Directory.
func (d *MemoryDirectory) CounselorsBySchool(ctx context.Context, schoolID int64) ([]*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var counselors []*User
	for _, u := range d.byID {
		if u.SchoolID == schoolID && u.Role == RoleCounselor {
			counselors = append(counselors, u)
		}
	}
	sort.Slice(counselors, func(i, j int) bool { return counselors[i].Name < counselors[j].Name })
	return counselors, nil
}
