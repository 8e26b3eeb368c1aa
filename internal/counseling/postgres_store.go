package counseling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"
)

// Schema is the DDL for the tables this store owns. The unique index on
// (counselor_id, reservation_time) backstops the distributed lock: even if
// two writers ever slipped past the lock, only one insert can commit.
const Schema = `
CREATE TABLE IF NOT EXISTS counselings (
	id               UUID PRIMARY KEY,
	reservation_time TIMESTAMPTZ NOT NULL,
	student_id       BIGINT NOT NULL,
	counselor_id     BIGINT NOT NULL,
	drawing_id       UUID NOT NULL,
	type             TEXT NOT NULL,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS counselings_slot_idx
	ON counselings (counselor_id, reservation_time);
CREATE INDEX IF NOT EXISTS counselings_reaper_idx
	ON counselings (status, reservation_time);
`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the store's tables and indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure counseling schema: %w", err)
	}
	return nil
}

// Create implements Store. Runs in autocommit, so the row is durably visible
// to other connections before Create returns.
func (s *PostgresStore) Create(ctx context.Context, c *Counseling) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO counselings (
			id, reservation_time, student_id, counselor_id,
			drawing_id, type, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		c.ID, c.ReservationTime, c.StudentID, c.CounselorID,
		c.DrawingID, c.Type, c.Status, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyReserved
		}
		return fmt.Errorf("insert counseling: %w", err)
	}

	return nil
}

// ExistsSlot implements Store. Deliberately ignores status: a closed session
// still blocks rebooking of the exact same slot.
func (s *PostgresStore) ExistsSlot(ctx context.Context, counselorID int64, t time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM counselings
			WHERE counselor_id = $1 AND reservation_time = $2
		)
	`, counselorID, NormalizeTime(t)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return exists, nil
}

// GetByID implements Store.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Counseling, error) {
	c := &Counseling{}
	err := s.db.QueryRow(ctx, `
		SELECT id, reservation_time, student_id, counselor_id,
		       drawing_id, type, status, created_at
		FROM counselings
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.ReservationTime, &c.StudentID, &c.CounselorID,
		&c.DrawingID, &c.Type, &c.Status, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query counseling: %w", err)
	}

	return c, nil
}

// ListByStudent implements Store.
func (s *PostgresStore) ListByStudent(ctx context.Context, studentID int64) ([]*Counseling, error) {
	return s.list(ctx, "student_id", studentID)
}

// ListByCounselor implements Store.
func (s *PostgresStore) ListByCounselor(ctx context.Context, counselorID int64) ([]*Counseling, error) {
	return s.list(ctx, "counselor_id", counselorID)
}

func (s *PostgresStore) list(ctx context.Context, field string, id int64) ([]*Counseling, error) {
	query := fmt.Sprintf(`
		SELECT id, reservation_time, student_id, counselor_id,
		       drawing_id, type, status, created_at
		FROM counselings
		WHERE %s = $1
		ORDER BY reservation_time ASC
	`, field)

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list counselings by %s: %w", field, err)
	}
	defer rows.Close()

	var list []*Counseling
	for rows.Next() {
		c := &Counseling{}
		if err := rows.Scan(
			&c.ID, &c.ReservationTime, &c.StudentID, &c.CounselorID,
			&c.DrawingID, &c.Type, &c.Status, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan counseling: %w", err)
		}
		list = append(list, c)
	}

	return list, rows.Err()
}

// NextOpenByStudent implements Store.
func (s *PostgresStore) NextOpenByStudent(ctx context.Context, studentID int64) (*Counseling, error) {
	return s.nextOpen(ctx, "student_id", studentID)
}

// NextOpenByCounselor implements Store.
func (s *PostgresStore) NextOpenByCounselor(ctx context.Context, counselorID int64) (*Counseling, error) {
	return s.nextOpen(ctx, "counselor_id", counselorID)
}

func (s *PostgresStore) nextOpen(ctx context.Context, field string, id int64) (*Counseling, error) {
	c := &Counseling{}
	query := fmt.Sprintf(`
		SELECT id, reservation_time, student_id, counselor_id,
		       drawing_id, type, status, created_at
		FROM counselings
		WHERE %s = $1 AND status = $2
		ORDER BY reservation_time ASC
		LIMIT 1
	`, field)

	err := s.db.QueryRow(ctx, query, id, StatusOpen).Scan(
		&c.ID, &c.ReservationTime, &c.StudentID, &c.CounselorID,
		&c.DrawingID, &c.Type, &c.Status, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query next open counseling: %w", err)
	}

	return c, nil
}

// CloseOverdue implements Store.
func (s *PostgresStore) CloseOverdue(ctx context.Context, threshold time.Time) (int64, error) {
	result, err := s.db.Exec(ctx, `
		UPDATE counselings
		SET status = $1
		WHERE status = $2 AND reservation_time < $3
	`, StatusClosed, StatusOpen, threshold)
	if err != nil {
		return 0, fmt.Errorf("close overdue counselings: %w", err)
	}
	return result.RowsAffected(), nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
