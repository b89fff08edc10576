package departments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Department groups staff and samples.
type Department struct {
	ID         int64
	Name       string
	StaffCount int
}

// Repository provides SQLite backed persistence for departments.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

// List returns all departments with their staff headcount.
func (r *Repository) List(ctx context.Context) ([]Department, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, `
		SELECT d.id, d.name, COUNT(u.id)
		FROM departments d
		LEFT JOIN users u ON u.department_id = d.id
		GROUP BY d.id, d.name
		ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("departments: list: %w", err)
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var dept Department
		if err := rows.Scan(&dept.ID, &dept.Name, &dept.StaffCount); err != nil {
			return nil, fmt.Errorf("departments: scan: %w", err)
		}
		out = append(out, dept)
	}
	return out, rows.Err()
}

// Get returns one department.
func (r *Repository) Get(ctx context.Context, id int64) (Department, error) {
	var dept Department
	err := r.handle.Conn().QueryRowContext(ctx,
		`SELECT id, name FROM departments WHERE id = ?`, id).Scan(&dept.ID, &dept.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Department{}, shared.ErrNotFound
	}
	if err != nil {
		return Department{}, fmt.Errorf("departments: get: %w", err)
	}
	return dept, nil
}

// Create inserts a department and returns its ID.
func (r *Repository) Create(ctx context.Context, name string) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx,
		`INSERT INTO departments (name) VALUES (?)`, name)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicateName
		}
		return 0, fmt.Errorf("departments: create: %w", err)
	}
	return res.LastInsertId()
}

// Rename changes a department's name.
func (r *Repository) Rename(ctx context.Context, id int64, name string) error {
	res, err := r.handle.Conn().ExecContext(ctx,
		`UPDATE departments SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateName
		}
		return fmt.Errorf("departments: rename: %w", err)
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

// Delete removes a department. Staff keep their accounts; the FK sets
// their department to NULL.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.handle.Conn().ExecContext(ctx, `DELETE FROM departments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("departments: delete: %w", err)
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

// Service handles department business logic.
type Service struct {
	repo *Repository
}

// NewService builds a Service instance.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// List returns all departments.
func (s *Service) List(ctx context.Context) ([]Department, error) {
	return s.repo.List(ctx)
}

// ListOptions returns departments as select-box options.
func (s *Service) ListOptions(ctx context.Context) ([]shared.Option, error) {
	depts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	opts := make([]shared.Option, 0, len(depts))
	for _, d := range depts {
		opts = append(opts, shared.Option{ID: d.ID, Name: d.Name})
	}
	return opts, nil
}

// Get returns one department.
func (s *Service) Get(ctx context.Context, id int64) (Department, error) {
	return s.repo.Get(ctx, id)
}

// Create adds a department.
func (s *Service) Create(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("departments: name required")
	}
	return s.repo.Create(ctx, name)
}

// Rename changes a department's name.
func (s *Service) Rename(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("departments: name required")
	}
	return s.repo.Rename(ctx, id, name)
}

// Delete removes a department, unassigning its staff.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
