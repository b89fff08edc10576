package labarchive

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
	_ "github.com/samplyze/samplyze/internal/testing/guard"
)

func testService(t *testing.T) (*Service, *db.Handle) {
	t.Helper()
	root := t.TempDir()
	handle, err := db.Open(context.Background(), filepath.Join(root, "laboratory.db"))
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
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(logger, handle, filepath.Join(root, "archives"), clock), handle
}

func TestCreateAndInspectRoundTrip(t *testing.T) {
	svc, handle := testService(t)
	ctx := context.Background()

	if _, err := handle.Conn().ExecContext(ctx,
		`INSERT INTO departments (name) VALUES ('Virology')`); err != nil {
		t.Fatalf("seed department: %v", err)
	}

	path, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "samplyze_archive_") {
		t.Fatalf("unexpected archive name %q", filepath.Base(path))
	}

	tables, err := svc.Inspect(ctx, path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var found bool
	for _, table := range tables {
		if table.Name != "departments" {
			continue
		}
		found = true
		if len(table.Rows) != 1 {
			t.Fatalf("expected 1 department row, got %d", len(table.Rows))
		}
		var hasName bool
		for _, cell := range table.Rows[0] {
			if cell == "Virology" {
				hasName = true
			}
		}
		if !hasName {
			t.Fatalf("department name missing from row %v", table.Rows[0])
		}
	}
	if !found {
		t.Fatal("departments table missing from archive")
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	svc, _ := testService(t)
	garbage := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(garbage, []byte("not sqlite"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if _, err := svc.Inspect(context.Background(), garbage); !errors.Is(err, shared.ErrInvalidArchive) {
		t.Fatalf("expected ErrInvalidArchive, got %v", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	svc, _ := testService(t)
	if err := os.MkdirAll(svc.archiveDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{
		"samplyze_archive_2026-01-01_00-00-00.db",
		"samplyze_archive_2026-02-01_00-00-00.db",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(svc.archiveDir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	names, err := svc.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 archives, got %v", names)
	}
	if names[0] != "samplyze_archive_2026-02-01_00-00-00.db" {
		t.Fatalf("expected newest first, got %v", names)
	}
}
