package drawing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against the drawings table owned by the
// upload pipeline.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// LatestByStudent implements Store.
func (s *PostgresStore) LatestByStudent(ctx context.Context, studentID int64) (*Drawing, error) {
	d := &Drawing{}
	err := s.db.QueryRow(ctx, `
		SELECT id, student_id, image_url, created_at
		FROM drawings
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, studentID).Scan(&d.ID, &d.StudentID, &d.ImageURL, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDrawing
		}
		return nil, fmt.Errorf("query latest drawing: %w", err)
	}

	return d, nil
}
