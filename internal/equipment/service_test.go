package equipment

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
	clock, err := shared.NewClock("Asia/Kolkata")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	return NewService(NewRepository(handle), clock), handle
}

func seedUser(t *testing.T, handle *db.Handle, username string) int64 {
	t.Helper()
	res, err := handle.Conn().ExecContext(context.Background(),
		`INSERT INTO users (username, name, password_hash) VALUES (?, ?, ?)`,
		username, username, "x")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed user id: %v", err)
	}
	return id
}

func TestRegisterRejectsDuplicateIDNumber(t *testing.T) {
	svc, _ := testSvc(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Input{IDNumber: "EQ-001", Name: "Centrifuge"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, Input{IDNumber: "EQ-001", Name: "Other"})
	if !errors.Is(err, shared.ErrDuplicateName) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestSingleUserEquipmentRefusesSecondSession(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()
	alice := seedUser(t, handle, "alice")
	bob := seedUser(t, handle, "bob")

	eq, err := svc.Register(ctx, Input{IDNumber: "EQ-002", Name: "Spectrometer"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.StartUsage(ctx, eq.ID, alice, "calibration run"); err != nil {
		t.Fatalf("start usage: %v", err)
	}
	if _, err := svc.StartUsage(ctx, eq.ID, bob, ""); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}

	if err := svc.EndUsage(ctx, eq.ID, alice); err != nil {
		t.Fatalf("end usage: %v", err)
	}
	if _, err := svc.StartUsage(ctx, eq.ID, bob, ""); err != nil {
		t.Fatalf("start after release: %v", err)
	}
}

func TestMultiUserEquipmentAllowsConcurrentSessions(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()
	alice := seedUser(t, handle, "alice")
	bob := seedUser(t, handle, "bob")

	eq, err := svc.Register(ctx, Input{IDNumber: "EQ-003", Name: "Incubator", MultiUser: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.StartUsage(ctx, eq.ID, alice, ""); err != nil {
		t.Fatalf("first session: %v", err)
	}
	if _, err := svc.StartUsage(ctx, eq.ID, bob, ""); err != nil {
		t.Fatalf("second session: %v", err)
	}
	// The same user still cannot hold two open sessions.
	if _, err := svc.StartUsage(ctx, eq.ID, alice, ""); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse for double session, got %v", err)
	}
}

func TestEndUsageWithoutOpenSession(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()
	alice := seedUser(t, handle, "alice")

	eq, err := svc.Register(ctx, Input{IDNumber: "EQ-004", Name: "Balance"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.EndUsage(ctx, eq.ID, alice); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLogsStampTimesAndJoinUser(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()
	alice := seedUser(t, handle, "alice")

	eq, err := svc.Register(ctx, Input{IDNumber: "EQ-005", Name: "PCR Machine"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.StartUsage(ctx, eq.ID, alice, "run 12"); err != nil {
		t.Fatalf("start usage: %v", err)
	}
	if err := svc.EndUsage(ctx, eq.ID, alice); err != nil {
		t.Fatalf("end usage: %v", err)
	}

	logs, err := svc.Logs(ctx, eq.ID)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	log := logs[0]
	if log.UserName != "alice" {
		t.Fatalf("user not joined: %+v", log)
	}
	if log.Notes != "run 12" {
		t.Fatalf("unexpected notes %q", log.Notes)
	}
	if log.EndTime == nil || log.EndTime.Before(log.StartTime) {
		t.Fatalf("bad timestamps: start=%v end=%v", log.StartTime, log.EndTime)
	}
}

func TestDeleteEquipmentCascadesLogs(t *testing.T) {
	svc, handle := testSvc(t)
	ctx := context.Background()
	alice := seedUser(t, handle, "alice")

	eq, err := svc.Register(ctx, Input{IDNumber: "EQ-006", Name: "Autoclave"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.StartUsage(ctx, eq.ID, alice, ""); err != nil {
		t.Fatalf("start usage: %v", err)
	}
	if err := svc.Delete(ctx, eq.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var count int
	if err := handle.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM equipment_logs`).Scan(&count); err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected logs to cascade, found %d", count)
	}
}
