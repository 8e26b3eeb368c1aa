// Package counseling implements counseling slot booking: the lock-guarded
// reservation protocol, the read-side queries, and the background reaper
// that closes overdue sessions.
package counseling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a counseling session.
type Status string

const (
	// StatusOpen marks a booked session that has not been closed yet.
	StatusOpen Status = "OPEN"
	// StatusClosed marks a session whose time has passed. Set only by the
	// reaper; a session never reopens.
	StatusClosed Status = "CLOSED"
)

// Counseling is a booked session between a student and a counselor.
// The (CounselorID, ReservationTime) pair is unique for the lifetime of the
// system regardless of status.
type Counseling struct {
	ID              uuid.UUID `json:"id"`
	ReservationTime time.Time `json:"reservationTime"`
	StudentID       int64     `json:"studentId"`
	CounselorID     int64     `json:"counselorId"`
	DrawingID       uuid.UUID `json:"drawingId"`
	Type            string    `json:"type"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// slotKeyTimeFormat renders a reservation time at minute precision for slot
// key derivation (yyyyMMddHHmm).
const slotKeyTimeFormat = "200601021504"

// SlotKey derives the lock key for a (counselor, time) slot. Times are
// truncated to the minute and rendered in UTC, so second-precision inputs
// for the same minute, and the same instant expressed in different zone
// offsets, contend on the same key.
func SlotKey(counselorID int64, t time.Time) string {
	return fmt.Sprintf("counselor:%d:time:%s", counselorID, NormalizeTime(t).Format(slotKeyTimeFormat))
}

// NormalizeTime canonicalizes a reservation time for conflict detection:
// truncated to the minute and converted to UTC, so equality is by instant
// rather than by the zone offset the client happened to send.
func NormalizeTime(t time.Time) time.Time {
	return t.Truncate(time.Minute).UTC()
}
