package applicants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Repository provides SQLite backed persistence for applicants.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

const applicantColumns = `id, uid, name, COALESCE(gender, ''), dob, COALESCE(phone, ''),
	COALESCE(email, ''), COALESCE(occupation, ''), COALESCE(city, ''), COALESCE(state, ''),
	COALESCE(country, ''), COALESCE(remarks, ''), COALESCE(overview, ''), created_at`

// List returns applicants matching search, newest first.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Applicant, error) {
	pattern := "%" + search + "%"
	rows, err := r.handle.Conn().QueryContext(ctx, `
		SELECT `+applicantColumns+` FROM applicants
		WHERE (? = '' OR name LIKE ? OR uid LIKE ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		search, pattern, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("applicants: list: %w", err)
	}
	defer rows.Close()

	var out []Applicant
	for rows.Next() {
		a, err := scanApplicant(rows)
		if err != nil {
			return nil, fmt.Errorf("applicants: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count returns the number of matching applicants.
func (r *Repository) Count(ctx context.Context, search string) (int, error) {
	pattern := "%" + search + "%"
	var count int
	err := r.handle.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applicants
		WHERE (? = '' OR name LIKE ? OR uid LIKE ?)`,
		search, pattern, pattern).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("applicants: count: %w", err)
	}
	return count, nil
}

// Get returns one applicant by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Applicant, error) {
	rows, err := r.handle.Conn().QueryContext(ctx,
		`SELECT `+applicantColumns+` FROM applicants WHERE id = ?`, id)
	if err != nil {
		return Applicant{}, fmt.Errorf("applicants: get: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Applicant{}, err
		}
		return Applicant{}, shared.ErrNotFound
	}
	return scanApplicant(rows)
}

// Create inserts an applicant with a caller-generated UID. A UID
// collision surfaces as ErrDuplicateName so the generator can retry.
func (r *Repository) Create(ctx context.Context, uid string, in Input, at time.Time) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx, `
		INSERT INTO applicants (uid, name, gender, dob, phone, email, occupation, city, state, country, remarks, overview, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uid, in.Name, in.Gender, nullableTime(in.DOB), in.Phone, in.Email,
		in.Occupation, in.City, in.State, in.Country, in.Remarks, in.Overview, at)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicateName
		}
		return 0, fmt.Errorf("applicants: create: %w", err)
	}
	return res.LastInsertId()
}

// Update rewrites an applicant's editable fields. The UID is
// immutable once assigned.
func (r *Repository) Update(ctx context.Context, id int64, in Input) error {
	res, err := r.handle.Conn().ExecContext(ctx, `
		UPDATE applicants SET name = ?, gender = ?, dob = ?, phone = ?, email = ?,
		occupation = ?, city = ?, state = ?, country = ?, remarks = ?, overview = ?
		WHERE id = ?`,
		in.Name, in.Gender, nullableTime(in.DOB), in.Phone, in.Email,
		in.Occupation, in.City, in.State, in.Country, in.Remarks, in.Overview, id)
	if err != nil {
		return fmt.Errorf("applicants: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an applicant. Samples cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.handle.Conn().ExecContext(ctx, `DELETE FROM applicants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("applicants: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanApplicant(rows *sql.Rows) (Applicant, error) {
	var (
		a   Applicant
		dob sql.NullTime
	)
	if err := rows.Scan(&a.ID, &a.UID, &a.Name, &a.Gender, &dob, &a.Phone, &a.Email,
		&a.Occupation, &a.City, &a.State, &a.Country, &a.Remarks, &a.Overview, &a.CreatedAt); err != nil {
		return Applicant{}, err
	}
	if dob.Valid {
		a.DOB = &dob.Time
	}
	return a, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
