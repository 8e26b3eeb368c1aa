// Package drawing provides read access to student drawing submissions.
// The upload and AI-analysis pipeline that produces them lives outside this
// service; booking only needs the latest submission per student.
package drawing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoDrawing is returned when a student has no drawing submission yet.
var ErrNoDrawing = errors.New("no drawing submitted")

// Drawing is a student's analyzed drawing submission.
type Drawing struct {
	ID        uuid.UUID `json:"id"`
	StudentID int64     `json:"studentId"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store provides read access to drawing submissions.
type Store interface {
	// LatestByStudent returns the student's most recent drawing,
	// or ErrNoDrawing when none exists.
	LatestByStudent(ctx context.Context, studentID int64) (*Drawing, error)
}
