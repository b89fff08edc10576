package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Repository provides SQLite backed persistence for staff accounts.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

const staffSelect = `
	SELECT u.id, u.username, u.name, u.role_id, COALESCE(r.name, ''),
	       u.department_id, COALESCE(d.name, '')
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id
	LEFT JOIN departments d ON d.id = u.department_id`

// List returns all accounts ordered by name.
func (r *Repository) List(ctx context.Context) ([]Staff, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, staffSelect+` ORDER BY u.name`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, staff)
	}
	return out, rows.Err()
}

// Get returns one account by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Staff, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, staffSelect+` WHERE u.id = ?`, id)
	if err != nil {
		return Staff{}, fmt.Errorf("users: get: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Staff{}, err
		}
		return Staff{}, shared.ErrNotFound
	}
	return scanStaff(rows)
}

// Create inserts an account and returns its ID.
func (r *Repository) Create(ctx context.Context, input StaffInput, passwordHash string) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx,
		`INSERT INTO users (username, name, password_hash, role_id, department_id)
		 VALUES (?, ?, ?, ?, ?)`,
		input.Username, input.Name, passwordHash, nullable(input.RoleID), nullable(input.DepartmentID))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicateName
		}
		return 0, fmt.Errorf("users: create: %w", err)
	}
	return res.LastInsertId()
}

// Update rewrites the editable fields of an account.
func (r *Repository) Update(ctx context.Context, id int64, input StaffInput) error {
	res, err := r.handle.Conn().ExecContext(ctx,
		`UPDATE users SET username = ?, name = ?, role_id = ?, department_id = ? WHERE id = ?`,
		input.Username, input.Name, nullable(input.RoleID), nullable(input.DepartmentID), id)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateName
		}
		return fmt.Errorf("users: update: %w", err)
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

// Delete removes an account. Sessions cascade, audit entries keep a
// NULL actor.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.handle.Conn().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
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

func scanStaff(rows *sql.Rows) (Staff, error) {
	var (
		staff  Staff
		roleID sql.NullInt64
		deptID sql.NullInt64
	)
	if err := rows.Scan(&staff.ID, &staff.Username, &staff.Name,
		&roleID, &staff.RoleName, &deptID, &staff.DepartmentName); err != nil {
		return Staff{}, err
	}
	if roleID.Valid {
		staff.RoleID = &roleID.Int64
	}
	if deptID.Valid {
		staff.DepartmentID = &deptID.Int64
	}
	return staff, nil
}

func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
