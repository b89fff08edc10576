package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/shared"
)

func testSvc(t *testing.T) (*Service, *rbac.Service) {
	t.Helper()
	ctx := context.Background()
	handle, err := db.Open(ctx, filepath.Join(t.TempDir(), "laboratory.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	if err := db.EnsureSchema(ctx, handle); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	roles := rbac.NewService(rbac.NewRepository(handle))
	if err := roles.SeedRegistry(ctx); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	if err := roles.SeedRoles(ctx, rbac.DefaultSeeds()); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	return NewService(NewRepository(handle)), roles
}

func TestAuthenticateFailsUniformly(t *testing.T) {
	svc, roles := testSvc(t)
	ctx := context.Background()

	if err := svc.EnsureBootstrapAdmin(ctx, roles, "correct horse"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	// Unknown user and wrong password must be indistinguishable.
	_, unknownErr := svc.Authenticate(ctx, "nobody", "whatever")
	_, wrongErr := svc.Authenticate(ctx, BootstrapAdminUsername, "wrong")
	if !errors.Is(unknownErr, shared.ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v; want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(wrongErr, shared.ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v; want ErrInvalidCredentials", wrongErr)
	}

	user, err := svc.Authenticate(ctx, BootstrapAdminUsername, "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Username != BootstrapAdminUsername {
		t.Fatalf("authenticated username = %q", user.Username)
	}
}

func TestEnsureBootstrapAdminIsIdempotent(t *testing.T) {
	svc, roles := testSvc(t)
	ctx := context.Background()

	if err := svc.EnsureBootstrapAdmin(ctx, roles, "first password"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	// A later boot with a different configured password must not
	// overwrite the stored credential.
	if err := svc.EnsureBootstrapAdmin(ctx, roles, "second password"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if _, err := svc.Authenticate(ctx, BootstrapAdminUsername, "first password"); err != nil {
		t.Fatalf("original password rejected after re-bootstrap: %v", err)
	}

	user, err := svc.Authenticate(ctx, BootstrapAdminUsername, "first password")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if ok, err := roles.IsAdmin(ctx, user.ID); err != nil || !ok {
		t.Fatalf("bootstrap admin IsAdmin = %v, %v", ok, err)
	}
}

func TestChangePasswordVerifiesCurrent(t *testing.T) {
	svc, roles := testSvc(t)
	ctx := context.Background()

	if err := svc.EnsureBootstrapAdmin(ctx, roles, "old password"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	user, err := svc.Authenticate(ctx, BootstrapAdminUsername, "old password")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	err = svc.ChangePassword(ctx, user.ID, "not the old one", "new password")
	if !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("change with wrong old password: %v; want ErrInvalidCredentials", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "old password", "new password"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, BootstrapAdminUsername, "old password"); err == nil {
		t.Fatal("old password still valid after change")
	}
	if _, err := svc.Authenticate(ctx, BootstrapAdminUsername, "new password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetPasswordBypassesCurrent(t *testing.T) {
	svc, roles := testSvc(t)
	ctx := context.Background()

	if err := svc.EnsureBootstrapAdmin(ctx, roles, "forgotten"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	user, err := svc.Authenticate(ctx, BootstrapAdminUsername, "forgotten")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := svc.ResetPassword(ctx, user.ID, "issued by admin"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, BootstrapAdminUsername, "issued by admin"); err != nil {
		t.Fatalf("reset password rejected: %v", err)
	}
}
