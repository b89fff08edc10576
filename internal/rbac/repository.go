package rbac

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Repository provides SQLite backed persistence for roles and permissions.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

// SeedPermissions ensures a row exists for every registry name. Rows for
// names no longer in the registry are left alone.
func (r *Repository) SeedPermissions(ctx context.Context, names []string) error {
	return db.WithTx(ctx, r.handle, func(tx *sql.Tx) error {
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO permissions (name) VALUES (?)`, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListPermissions returns all stored permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, `SELECT id, name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListRoles returns all roles with their permission sets, ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, `SELECT id, name, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := r.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// GetRole fetches a role and its permission set by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.handle.Conn().QueryRowContext(ctx, `SELECT id, name, created_at FROM roles WHERE id = ?`, id).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions, err = r.rolePermissions(ctx, role.ID)
	return role, err
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	var id int64
	err := r.handle.Conn().QueryRowContext(ctx, `SELECT id FROM roles WHERE name = ?`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return r.GetRole(ctx, id)
}

func (r *Repository) rolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, `
		SELECT p.name FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ?
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateRole inserts a role together with its permission assignments.
func (r *Repository) CreateRole(ctx context.Context, name string, permissions []string) (int64, error) {
	var roleID int64
	err := db.WithTx(ctx, r.handle, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO roles (name, created_at) VALUES (?, ?)`, name, time.Now().UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return shared.ErrDuplicateName
			}
			return err
		}
		roleID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		return assignPermissions(ctx, tx, roleID, permissions)
	})
	return roleID, err
}

// UpdateRole renames a role and replaces its entire permission set.
// Assignments are cleared and re-inserted, never merged.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name string, permissions []string) error {
	return db.WithTx(ctx, r.handle, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE roles SET name = ? WHERE id = ?`, name, id)
		if err != nil {
			if isUniqueViolation(err) {
				return shared.ErrDuplicateName
			}
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, id); err != nil {
			return err
		}
		return assignPermissions(ctx, tx, id, permissions)
	})
}

// DeleteRole removes a role and unassigns (not deletes) every user that
// referenced it, in one transaction.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.handle, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET role_id = NULL WHERE role_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
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
	})
}

// UserRole resolves the role of a user. Resolved per call so checks
// never rely on a cached or denormalized copy; found is false when the
// user has no role assigned.
func (r *Repository) UserRole(ctx context.Context, userID int64) (role Role, found bool, err error) {
	var roleID sql.NullInt64
	err = r.handle.Conn().QueryRowContext(ctx, `SELECT role_id FROM users WHERE id = ?`, userID).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Role{}, false, nil
		}
		return Role{}, false, err
	}
	if !roleID.Valid {
		return Role{}, false, nil
	}
	role, err = r.GetRole(ctx, roleID.Int64)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Role{}, false, nil
		}
		return Role{}, false, err
	}
	return role, true, nil
}

// RoleHasPermission checks membership of one permission in a role's set.
func (r *Repository) RoleHasPermission(ctx context.Context, roleID int64, permission string) (bool, error) {
	var one int
	err := r.handle.Conn().QueryRowContext(ctx, `
		SELECT 1 FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ? AND p.name = ?`, roleID, permission).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func assignPermissions(ctx context.Context, tx *sql.Tx, roleID int64, permissions []string) error {
	for _, name := range permissions {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT ?, id FROM permissions WHERE name = ?`, roleID, name)
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
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
