package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/samplyze/samplyze/internal/auth"
	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/shared"
)

// Service handles staff-management business logic.
type Service struct {
	repo *Repository
	auth *auth.Service
}

// NewService builds a Service instance.
func NewService(repo *Repository, authSvc *auth.Service) *Service {
	return &Service{repo: repo, auth: authSvc}
}

// List returns all staff accounts.
func (s *Service) List(ctx context.Context) ([]Staff, error) {
	return s.repo.List(ctx)
}

// ListOptions returns staff as select-box options.
func (s *Service) ListOptions(ctx context.Context) ([]shared.Option, error) {
	staff, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	opts := make([]shared.Option, 0, len(staff))
	for _, member := range staff {
		opts = append(opts, shared.Option{ID: member.ID, Name: member.Name})
	}
	return opts, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Staff, error) {
	return s.repo.Get(ctx, id)
}

// Create adds an account with a freshly hashed password.
func (s *Service) Create(ctx context.Context, input StaffInput, password string) (int64, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Name = strings.TrimSpace(input.Name)
	hash, err := auth.HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("users: hash password: %w", err)
	}
	return s.repo.Create(ctx, input, hash)
}

// Update rewrites an account's profile fields. The bootstrap admin
// account keeps its username so the installation can always be
// recovered with it.
func (s *Service) Update(ctx context.Context, id int64, input StaffInput) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Name = strings.TrimSpace(input.Name)
	if current.Username == auth.BootstrapAdminUsername {
		input.Username = current.Username
	}
	return s.repo.Update(ctx, id, input)
}

// Delete removes an account. Accounts holding the Admin role are
// protected, not just the bootstrap admin.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Username == auth.BootstrapAdminUsername || current.RoleName == rbac.AdminRoleName {
		return shared.ErrProtectedAccount
	}
	return s.repo.Delete(ctx, id)
}

// ResetPassword sets a new password without requiring the old one.
func (s *Service) ResetPassword(ctx context.Context, id int64, password string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.auth.ResetPassword(ctx, id, password)
}
