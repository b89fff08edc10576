package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/shared"
)

// BootstrapAdminUsername is the account auto-created at startup.
const BootstrapAdminUsername = "admin"

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates username/password credentials. Every failure
// path returns the same ErrInvalidCredentials so the response cannot be
// used to probe for valid usernames.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword lets a user rotate their own password after proving
// they know the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordHash(ctx, userID, hash)
}

// ResetPassword replaces a user's password without verification. Only
// reachable through the admin-gated staff management surface.
func (s *Service) ResetPassword(ctx context.Context, userID int64, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordHash(ctx, userID, hash)
}

// EnsureBootstrapAdmin creates the admin account bound to the Admin
// role if it does not exist yet.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, roles *rbac.Service, password string) error {
	if _, err := s.repo.FindByUsername(ctx, BootstrapAdminUsername); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	adminRole, err := roles.ListRoles(ctx)
	if err != nil {
		return err
	}
	var roleID *int64
	for _, role := range adminRole {
		if role.IsAdmin() {
			id := role.ID
			roleID = &id
			break
		}
	}
	if roleID == nil {
		return fmt.Errorf("auth: admin role not seeded")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.repo.CreateUser(ctx, User{
		Username:     BootstrapAdminUsername,
		Name:         "Administrator",
		PasswordHash: hash,
		RoleID:       roleID,
	})
	return err
}

// RegisterSession persists the session metadata in the store.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from the store.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// HashPassword applies the slow salted hash used for all stored passwords.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
