// Package user provides identity lookup for booking participants.
// Account management itself lives outside this service; the booking core
// only resolves references and never mutates users.
package user

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user cannot be resolved.
var ErrNotFound = errors.New("user not found")

// Role classifies a user for booking purposes.
type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleCounselor Role = "COUNSELOR"
)

// User is a booking participant.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	SchoolID int64  `json:"schoolId"`
}

// Directory resolves booking participants.
type Directory interface {
	// ByEmail returns the user with the given email, or ErrNotFound.
	ByEmail(ctx context.Context, email string) (*User, error)

	// ByID returns the user with the given id, or ErrNotFound.
	ByID(ctx context.Context, id int64) (*User, error)

	// CounselorsBySchool returns all counselors attached to a school.
	CounselorsBySchool(ctx context.Context, schoolID int64) ([]*User, error)
}
