package counseling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for counseling persistence.
type Store interface {
	// Create persists a new counseling session. The write is committed
	// before Create returns, so a subsequent ExistsSlot by any caller
	// observes it. Returns ErrAlreadyReserved if the slot is taken.
	Create(ctx context.Context, c *Counseling) error

	// ExistsSlot reports whether any session, in any status, occupies the
	// (counselor, minute-precision time) slot.
	ExistsSlot(ctx context.Context, counselorID int64, t time.Time) (bool, error)

	// GetByID returns a session by id, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Counseling, error)

	// ListByStudent returns a student's sessions ordered by reservation time.
	ListByStudent(ctx context.Context, studentID int64) ([]*Counseling, error)

	// ListByCounselor returns a counselor's sessions ordered by reservation time.
	ListByCounselor(ctx context.Context, counselorID int64) ([]*Counseling, error)

	// NextOpenByStudent returns the student's soonest OPEN session, or ErrNotFound.
	NextOpenByStudent(ctx context.Context, studentID int64) (*Counseling, error)

	// NextOpenByCounselor returns the counselor's soonest OPEN session, or ErrNotFound.
	NextOpenByCounselor(ctx context.Context, counselorID int64) (*Counseling, error)

	// CloseOverdue transitions every OPEN session with a reservation time
	// before threshold to CLOSED and returns how many rows changed.
	// Re-running on already-closed sessions is a no-op.
	CloseOverdue(ctx context.Context, threshold time.Time) (int64, error)
}
