package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/samplyze/samplyze/internal/auth"
	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/shared"
)

func testSvc(t *testing.T) (*Service, *auth.Service, *rbac.Service) {
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
	authSvc := auth.NewService(auth.NewRepository(handle))
	if err := authSvc.EnsureBootstrapAdmin(ctx, roles, "bootstrap pw"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	return NewService(NewRepository(handle), authSvc), authSvc, roles
}

func seedRoleID(t *testing.T, roles *rbac.Service, name string) *int64 {
	t.Helper()
	all, err := roles.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	for _, role := range all {
		if role.Name == name {
			id := role.ID
			return &id
		}
	}
	t.Fatalf("role %q not seeded", name)
	return nil
}

func TestCreateStoresUsablePassword(t *testing.T) {
	svc, authSvc, _ := testSvc(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, StaffInput{Username: "asha.nair", Name: "Asha Nair"}, "lab password"); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if _, err := authSvc.Authenticate(ctx, "asha.nair", "lab password"); err != nil {
		t.Fatalf("authenticate new account: %v", err)
	}
	if _, err := authSvc.Authenticate(ctx, "asha.nair", "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestDeleteRefusesAdminRoleAccounts(t *testing.T) {
	svc, _, roles := testSvc(t)
	ctx := context.Background()

	adminRole := seedRoleID(t, roles, rbac.AdminRoleName)
	secondAdmin, err := svc.Create(ctx, StaffInput{Username: "second.admin", Name: "Second Admin", RoleID: adminRole}, "password123")
	if err != nil {
		t.Fatalf("create admin account: %v", err)
	}

	// Any account holding the Admin role is protected, not just the
	// bootstrap one.
	if err := svc.Delete(ctx, secondAdmin); !errors.Is(err, shared.ErrProtectedAccount) {
		t.Fatalf("delete admin-role account: %v; want ErrProtectedAccount", err)
	}
	if _, err := svc.Get(ctx, secondAdmin); err != nil {
		t.Fatalf("admin-role account missing after refused delete: %v", err)
	}
}

func TestDeleteRefusesBootstrapAdmin(t *testing.T) {
	svc, _, _ := testSvc(t)
	ctx := context.Background()

	all, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list staff: %v", err)
	}
	var bootstrapID int64
	for _, member := range all {
		if member.Username == auth.BootstrapAdminUsername {
			bootstrapID = member.ID
		}
	}
	if bootstrapID == 0 {
		t.Fatal("bootstrap admin not present")
	}
	if err := svc.Delete(ctx, bootstrapID); !errors.Is(err, shared.ErrProtectedAccount) {
		t.Fatalf("delete bootstrap admin: %v; want ErrProtectedAccount", err)
	}
}

func TestDeleteRemovesRegularAccount(t *testing.T) {
	svc, _, roles := testSvc(t)
	ctx := context.Background()

	staffRole := seedRoleID(t, roles, "Staff")
	id, err := svc.Create(ctx, StaffInput{Username: "ravi.iyer", Name: "Ravi Iyer", RoleID: staffRole}, "password123")
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("delete staff: %v", err)
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("get after delete: %v; want ErrNotFound", err)
	}
}
