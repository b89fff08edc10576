package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/samplyze/samplyze/internal/shared"
)

// Service orchestrates the permission registry and the role store.
type Service struct {
	repo *Repository
}

// NewService constructs a Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// SeedRegistry idempotently stores every compiled-in permission name.
func (s *Service) SeedRegistry(ctx context.Context) error {
	return s.repo.SeedPermissions(ctx, Registry())
}

// SeedRoles creates any seed role that does not exist yet. Existing
// roles are never rewritten, so operator edits survive restarts.
func (s *Service) SeedRoles(ctx context.Context, seeds []RoleSeed) error {
	for _, seed := range seeds {
		_, err := s.repo.GetRoleByName(ctx, seed.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if _, err := s.repo.CreateRole(ctx, seed.Name, seed.Permissions); err != nil {
			return err
		}
	}
	return nil
}

// ListRoles returns all roles with their permission sets.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListPermissions returns the stored permission rows.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreateRole creates a role holding exactly the given permissions.
func (s *Service) CreateRole(ctx context.Context, name string, permissions []string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("rbac: role name required")
	}
	return s.repo.CreateRole(ctx, name, permissions)
}

// UpdateRole replaces a role's name and entire permission set.
func (s *Service) UpdateRole(ctx context.Context, id int64, name string, permissions []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("rbac: role name required")
	}
	return s.repo.UpdateRole(ctx, id, name, permissions)
}

// DeleteRole removes a role. The Admin role is protected; users holding
// the deleted role lose the assignment but are not deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsAdmin() {
		return shared.ErrProtectedRole
	}
	return s.repo.DeleteRole(ctx, id)
}

// HasPermission reports whether the role grants the permission. The
// Admin rule lives here and nowhere else: Admin implies every registry
// permission, including ones registered after the role was created.
func (s *Service) HasPermission(ctx context.Context, role Role, permission string) (bool, error) {
	if role.IsAdmin() {
		return InRegistry(permission), nil
	}
	return s.repo.RoleHasPermission(ctx, role.ID, permission)
}

// Can reports whether the user holds the permission. The role is
// resolved fresh on every call; a user without a role can do nothing.
func (s *Service) Can(ctx context.Context, userID int64, permission string) (bool, error) {
	role, found, err := s.repo.UserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return s.HasPermission(ctx, role, permission)
}

// IsAdmin reports whether the user's role is the Admin role. Kept
// separate from Can on purpose: some operations are hard-gated to the
// admin role itself rather than to any permission flag.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	role, found, err := s.repo.UserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return found && role.IsAdmin(), nil
}
