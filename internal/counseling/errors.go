package counseling

import "errors"

// Booking outcomes surfaced to callers. Each maps to a stable API error code.
var (
	// ErrAlreadyReserved is returned when the target slot already has a
	// reservation, in any status.
	ErrAlreadyReserved = errors.New("slot already reserved")

	// ErrNotFound is returned when a counseling session cannot be found.
	ErrNotFound = errors.New("counseling not found")

	// ErrNotParticipant is returned when the requester is neither the
	// student nor the counselor of the session.
	ErrNotParticipant = errors.New("requester is not a participant of this counseling")

	// ErrLockUnavailable is returned when the booking lock could not be
	// acquired, either because the wait timed out or because the lock
	// coordinator is unreachable. The booking is never attempted without
	// the lock.
	ErrLockUnavailable = errors.New("booking lock unavailable")
)
