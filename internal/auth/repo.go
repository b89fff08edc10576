package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	CreateUser(ctx context.Context, user User) (int64, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// SQLRepository implements Repository against the SQLite storage file.
type SQLRepository struct {
	handle *db.Handle
}

// NewRepository constructs a SQLite repository.
func NewRepository(handle *db.Handle) *SQLRepository {
	return &SQLRepository{handle: handle}
}

const userColumns = `id, username, name, password_hash, role_id, department_id`

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var roleID, deptID sql.NullInt64
	if err := row.Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash, &roleID, &deptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if roleID.Valid {
		user.RoleID = &roleID.Int64
	}
	if deptID.Valid {
		user.DepartmentID = &deptID.Int64
	}
	return &user, nil
}

// FindByUsername fetches a user by login name.
func (r *SQLRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := r.handle.Conn().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// FindByID fetches a user by primary key.
func (r *SQLRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.handle.Conn().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UpdatePasswordHash stores a new password hash.
func (r *SQLRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := r.handle.Conn().ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return err
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

// CreateUser inserts a user account.
func (r *SQLRepository) CreateUser(ctx context.Context, user User) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx,
		`INSERT INTO users (username, name, password_hash, role_id, department_id) VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Name, user.PasswordHash, nullable(user.RoleID), nullable(user.DepartmentID))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateSession persists a login session row for auditing.
func (r *SQLRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.handle.Conn().ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, user_id, created_at, expires_at, ip, ua) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, time.Now().UTC(), expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session row.
func (r *SQLRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.handle.Conn().ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

var _ Repository = (*SQLRepository)(nil)
