package rbac

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

func testSvc(t *testing.T) (*Service, *db.Handle) {
	t.Helper()
	handle, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "laboratory.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	if err := db.EnsureSchema(context.Background(), handle); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	svc := NewService(NewRepository(handle))
	if err := svc.SeedRegistry(context.Background()); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	if err := svc.SeedRoles(context.Background(), DefaultSeeds()); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	return svc, handle
}

func seedUserWithRole(t *testing.T, handle *db.Handle, username string, roleID *int64) int64 {
	t.Helper()
	var role any
	if roleID != nil {
		role = *roleID
	}
	res, err := handle.Conn().ExecContext(context.Background(),
		`INSERT INTO users (username, name, password_hash, role_id) VALUES (?, ?, 'x', ?)`,
		username, username, role)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed user id: %v", err)
	}
	return id
}

func roleByName(t *testing.T, svc *Service, name string) Role {
	t.Helper()
	roles, err := svc.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	for _, role := range roles {
		if role.Name == name {
			return role
		}
	}
	t.Fatalf("role %q not found", name)
	return Role{}
}

func TestAdminImpliesEveryRegisteredPermission(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()

	admin := roleByName(t, svc, AdminRoleName)
	if len(admin.Permissions) != 0 {
		t.Fatalf("admin role carries explicit permissions: %v", admin.Permissions)
	}
	userID := seedUserWithRole(t, handle, "root", &admin.ID)

	for _, perm := range Registry() {
		ok, err := svc.Can(ctx, userID, perm)
		if err != nil {
			t.Fatalf("can %s: %v", perm, err)
		}
		if !ok {
			t.Fatalf("admin denied %s", perm)
		}
	}
	// Names outside the registry are denied even for admin.
	if ok, _ := svc.Can(ctx, userID, "warp.drive"); ok {
		t.Fatal("admin granted an unregistered permission")
	}
	if ok, err := svc.IsAdmin(ctx, userID); err != nil || !ok {
		t.Fatalf("IsAdmin = %v, %v", ok, err)
	}
}

func TestUserWithoutRoleIsDeniedEverything(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()

	userID := seedUserWithRole(t, handle, "drifter", nil)
	if ok, err := svc.Can(ctx, userID, PermApplicants); err != nil || ok {
		t.Fatalf("Can = %v, %v; want false", ok, err)
	}
	if ok, err := svc.IsAdmin(ctx, userID); err != nil || ok {
		t.Fatalf("IsAdmin = %v, %v; want false", ok, err)
	}
}

func TestUpdateRoleReplacesPermissionSet(t *testing.T) {
	svc, _ := testSvc(t)
	ctx := context.Background()

	id, err := svc.CreateRole(ctx, "Technician", []string{PermSampling, PermDiagnosis})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := svc.UpdateRole(ctx, id, "Technician", []string{PermInventory}); err != nil {
		t.Fatalf("update role: %v", err)
	}
	role, err := svc.GetRole(ctx, id)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if len(role.Permissions) != 1 || role.Permissions[0] != PermInventory {
		t.Fatalf("permissions after update = %v", role.Permissions)
	}
	if ok, err := svc.HasPermission(ctx, role, PermSampling); err != nil || ok {
		t.Fatalf("HasPermission(sampling) = %v, %v; want false", ok, err)
	}
}

func TestDeleteAdminRoleIsRefused(t *testing.T) {
	svc, _ := testSvc(t)

	admin := roleByName(t, svc, AdminRoleName)
	err := svc.DeleteRole(context.Background(), admin.ID)
	if !errors.Is(err, shared.ErrProtectedRole) {
		t.Fatalf("delete admin role: %v; want ErrProtectedRole", err)
	}
}

func TestDeleteRoleUnassignsUsers(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()

	id, err := svc.CreateRole(ctx, "Clerk", []string{PermReports})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	userID := seedUserWithRole(t, handle, "clerk1", &id)

	if err := svc.DeleteRole(ctx, id); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	if ok, err := svc.Can(ctx, userID, PermReports); err != nil || ok {
		t.Fatalf("Can after role delete = %v, %v; want false", ok, err)
	}
	var count int
	if err := handle.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&count); err != nil {
		t.Fatalf("count user: %v", err)
	}
	if count != 1 {
		t.Fatal("user row deleted along with role")
	}
}

func TestSeedRolesNeverRewritesExistingRoles(t *testing.T) {
	svc, _ := testSvc(t)
	ctx := context.Background()

	staff := roleByName(t, svc, "Staff")
	if err := svc.UpdateRole(ctx, staff.ID, "Staff", []string{PermReports}); err != nil {
		t.Fatalf("update role: %v", err)
	}
	if err := svc.SeedRoles(ctx, DefaultSeeds()); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	staff = roleByName(t, svc, "Staff")
	if len(staff.Permissions) != 1 || staff.Permissions[0] != PermReports {
		t.Fatalf("re-seed rewrote staff permissions: %v", staff.Permissions)
	}
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc, _ := testSvc(t)
	if _, err := svc.CreateRole(context.Background(), "   ", nil); err == nil {
		t.Fatal("blank role name accepted")
	}
}
