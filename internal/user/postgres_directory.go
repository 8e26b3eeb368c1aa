package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory implements Directory against the shared users table.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory creates a new PostgresDirectory.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// ByEmail implements Directory.
func (d *PostgresDirectory) ByEmail(ctx context.Context, email string) (*User, error) {
	return d.getByField(ctx, "email", email)
}

// ByID implements Directory.
func (d *PostgresDirectory) ByID(ctx context.Context, id int64) (*User, error) {
	return d.getByField(ctx, "id", id)
}

func (d *PostgresDirectory) getByField(ctx context.Context, field string, value any) (*User, error) {
	u := &User{}
	query := fmt.Sprintf(`
		SELECT id, email, name, role, school_id
		FROM users
		WHERE %s = $1
	`, field)

	err := d.db.QueryRow(ctx, query, value).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.SchoolID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by %s: %w", field, err)
	}

	return u, nil
}

// CounselorsBySchool implements Directory.
func (d *PostgresDirectory) CounselorsBySchool(ctx context.Context, schoolID int64) ([]*User, error) {
	rows, err := d.db.Query(ctx, `
		SELECT id, email, name, role, school_id
		FROM users
		WHERE school_id = $1 AND role = $2
		ORDER BY name
	`, schoolID, RoleCounselor)
	if err != nil {
		return nil, fmt.Errorf("query counselors: %w", err)
	}
	defer rows.Close()

	var counselors []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.SchoolID); err != nil {
			return nil, fmt.Errorf("scan counselor: %w", err)
		}
		counselors = append(counselors, u)
	}

	return counselors, rows.Err()
}
