package counseling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tetonam/counseling-system/internal/drawing"
	"github.com/tetonam/counseling-system/internal/lock"
	"github.com/tetonam/counseling-system/internal/metrics"
	"github.com/tetonam/counseling-system/internal/user"
)

// Default lock bounds for the booking path. The wait bounds how long a
// contended caller blocks; the hold is a safety valve reclaiming the lock
// from a crashed holder.
const (
	DefaultLockWait = 3 * time.Second
	DefaultLockHold = 10 * time.Second
)

// ReserveRequest is a booking attempt for one slot. Time may carry seconds;
// conflict detection works at minute precision.
type ReserveRequest struct {
	CounselorID int64     `json:"counselorId"`
	Time        time.Time `json:"time"`
	Type        string    `json:"type"`
}

// Service implements slot booking and the counseling read operations.
// All collaborators are injected; there is no ambient state.
type Service struct {
	users    user.Directory
	drawings drawing.Store
	store    Store
	locker   lock.Locker
	logger   zerolog.Logger

	lockWait time.Duration
	lockHold time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLockTimeouts overrides the booking lock wait and hold bounds.
func WithLockTimeouts(wait, hold time.Duration) ServiceOption {
	return func(s *Service) {
		s.lockWait = wait
		s.lockHold = hold
	}
}

// NewService creates a counseling service with the provided dependencies.
func NewService(users user.Directory, drawings drawing.Store, store Store, locker lock.Locker, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		users:    users,
		drawings: drawings,
		store:    store,
		locker:   locker,
		logger:   logger.With().Str("component", "counseling").Logger(),
		lockWait: DefaultLockWait,
		lockHold: DefaultLockHold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve books the (counselor, time) slot for the student identified by
// studentEmail. Among concurrent attempts for the same slot exactly one
// succeeds; the rest fail with ErrAlreadyReserved. The existence check and
// the insert both run inside the slot lock, and the insert commits before
// the lock releases, so a later holder always observes an earlier winner.
func (s *Service) Reserve(ctx context.Context, studentEmail string, req ReserveRequest) (*Counseling, error) {
	student, err := s.users.ByEmail(ctx, studentEmail)
	if err != nil {
		metrics.RecordBookingAttempt("not_found")
		return nil, fmt.Errorf("resolve student: %w", err)
	}

	counselor, err := s.users.ByID(ctx, req.CounselorID)
	if err != nil {
		metrics.RecordBookingAttempt("not_found")
		return nil, fmt.Errorf("resolve counselor: %w", err)
	}
	if counselor.Role != user.RoleCounselor {
		metrics.RecordBookingAttempt("not_found")
		return nil, fmt.Errorf("resolve counselor: %w", user.ErrNotFound)
	}

	latest, err := s.drawings.LatestByStudent(ctx, student.ID)
	if err != nil {
		metrics.RecordBookingAttempt("not_found")
		return nil, fmt.Errorf("resolve drawing: %w", err)
	}

	key := SlotKey(req.CounselorID, req.Time)
	var created *Counseling

	// Carry the logger in the context so WithLock can report a failed release.
	ctx = s.logger.WithContext(ctx)

	lockStart := time.Now()
	err = lock.WithLock(ctx, s.locker, key, s.lockWait, s.lockHold, func(ctx context.Context) error {
		metrics.RecordLockWait(time.Since(lockStart).Seconds())

		exists, err := s.store.ExistsSlot(ctx, req.CounselorID, req.Time)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if exists {
			return ErrAlreadyReserved
		}

		c := &Counseling{
			ID:              uuid.New(),
			ReservationTime: NormalizeTime(req.Time),
			StudentID:       student.ID,
			CounselorID:     counselor.ID,
			DrawingID:       latest.ID,
			Type:            req.Type,
			Status:          StatusOpen,
			CreatedAt:       time.Now(),
		}
		if err := s.store.Create(ctx, c); err != nil {
			return err
		}

		created = c
		return nil
	})

	switch {
	case err == nil:
		metrics.RecordBookingAttempt("success")
		s.logger.Info().
			Str("slotKey", key).
			Int64("studentId", student.ID).
			Int64("counselorId", counselor.ID).
			Msg("counseling reserved")
		return created, nil

	case errors.Is(err, ErrAlreadyReserved):
		metrics.RecordBookingAttempt("conflict")
		return nil, ErrAlreadyReserved

	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, lock.ErrCoordinator):
		// Never proceed without the lock; a coordinator outage degrades to
		// "no one can book", not "everyone can book".
		// The wait still counts: exhausted waits are the slowest samples
		// the histogram has.
		metrics.RecordLockWait(time.Since(lockStart).Seconds())
		metrics.RecordBookingAttempt("lock_unavailable")
		s.logger.Warn().Err(err).Str("slotKey", key).Msg("booking lock unavailable")
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)

	default:
		metrics.RecordBookingAttempt("error")
		return nil, err
	}
}

// AvailableCounselors lists the counselors of the requester's school that
// have no session, in any status, at the requested time.
func (s *Service) AvailableCounselors(ctx context.Context, studentEmail string, t time.Time) ([]*user.User, error) {
	student, err := s.users.ByEmail(ctx, studentEmail)
	if err != nil {
		return nil, err
	}

	counselors, err := s.users.CounselorsBySchool(ctx, student.SchoolID)
	if err != nil {
		return nil, err
	}

	available := make([]*user.User, 0, len(counselors))
	for _, c := range counselors {
		taken, err := s.store.ExistsSlot(ctx, c.ID, t)
		if err != nil {
			return nil, err
		}
		if !taken {
			available = append(available, c)
		}
	}

	return available, nil
}

// StudentHistory returns all sessions booked by the student, soonest first.
func (s *Service) StudentHistory(ctx context.Context, email string) ([]*Counseling, error) {
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.store.ListByStudent(ctx, u.ID)
}

// CounselorHistory returns all sessions assigned to the counselor, soonest first.
func (s *Service) CounselorHistory(ctx context.Context, email string) ([]*Counseling, error) {
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.store.ListByCounselor(ctx, u.ID)
}

// Upcoming returns the requester's soonest OPEN session, by their role.
func (s *Service) Upcoming(ctx context.Context, email string) (*Counseling, error) {
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if u.Role == user.RoleCounselor {
		return s.store.NextOpenByCounselor(ctx, u.ID)
	}
	return s.store.NextOpenByStudent(ctx, u.ID)
}

// Detail returns one session; only its student or counselor may read it.
func (s *Service) Detail(ctx context.Context, email string, id uuid.UUID) (*Counseling, error) {
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.StudentID != u.ID && c.CounselorID != u.ID {
		return nil, ErrNotParticipant
	}

	return c, nil
}
