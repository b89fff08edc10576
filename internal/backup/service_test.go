package backup

import (
	"archive/zip"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
	_ "github.com/samplyze/samplyze/internal/testing/guard"
)

func testService(t *testing.T) (*Service, *db.Handle, Paths) {
	t.Helper()
	root := t.TempDir()
	paths := Paths{
		DBPath:    filepath.Join(root, "instance", "laboratory.db"),
		UploadDir: filepath.Join(root, "static", "uploads"),
		SharedDir: filepath.Join(root, "shared_files"),
		BackupDir: filepath.Join(root, "instance", "backups"),
	}
	handle, err := db.Open(context.Background(), paths.DBPath)
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
	return NewService(logger, handle, paths, clock), handle, paths
}

func testSessions(t *testing.T) (*shared.SessionManager, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return shared.NewSessionManager(client, "samplyze_session", "test-secret", time.Hour, false), client
}

func TestCreateProducesArchiveWithDatabase(t *testing.T) {
	svc, _, paths := testService(t)

	if err := os.MkdirAll(paths.UploadDir, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	if err := os.WriteFile(filepath.Join(paths.UploadDir, "photo.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}

	archivePath, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(archivePath), "samplyze_backup_") {
		t.Fatalf("unexpected archive name %q", filepath.Base(archivePath))
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["database/laboratory.db"] {
		t.Fatal("archive missing database entry")
	}
	if !names["uploads/photo.jpg"] {
		t.Fatal("archive missing upload entry")
	}
}

func TestRestoreRejectsInvalidArchive(t *testing.T) {
	svc, handle, _ := testService(t)
	sessions, _ := testSessions(t)

	// A zip with no database entry must not touch anything.
	bad := filepath.Join(t.TempDir(), "bad.zip")
	f, err := os.Create(bad)
	if err != nil {
		t.Fatalf("create bad zip: %v", err)
	}
	zw := zip.NewWriter(f)
	entry, _ := zw.Create("readme.txt")
	entry.Write([]byte("not a backup"))
	zw.Close()
	f.Close()

	if err := svc.Restore(context.Background(), bad, sessions); err != shared.ErrInvalidArchive {
		t.Fatalf("expected ErrInvalidArchive, got %v", err)
	}
	// The handle must still be usable.
	if err := handle.Conn().PingContext(context.Background()); err != nil {
		t.Fatalf("database handle broken after rejected restore: %v", err)
	}
}

func TestRestoreRejectsNonZip(t *testing.T) {
	svc, _, _ := testService(t)
	sessions, _ := testSessions(t)

	garbage := filepath.Join(t.TempDir(), "garbage.zip")
	if err := os.WriteFile(garbage, []byte("not a zip at all"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := svc.Restore(context.Background(), garbage, sessions); err != shared.ErrInvalidArchive {
		t.Fatalf("expected ErrInvalidArchive, got %v", err)
	}
}

func TestRestoreRoundTripPurgesSessions(t *testing.T) {
	svc, handle, paths := testService(t)
	sessions, client := testSessions(t)

	ctx := context.Background()
	if _, err := handle.Conn().ExecContext(ctx, `INSERT INTO departments (name) VALUES ('Hematology')`); err != nil {
		t.Fatalf("seed department: %v", err)
	}

	archivePath, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}

	if _, err := handle.Conn().ExecContext(ctx, `DELETE FROM departments`); err != nil {
		t.Fatalf("wipe departments: %v", err)
	}
	if err := client.Set(ctx, "session:abc", "{}", time.Hour).Err(); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := os.MkdirAll(paths.UploadDir, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	if err := os.WriteFile(filepath.Join(paths.UploadDir, "stale.txt"), []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale upload: %v", err)
	}

	if err := svc.Restore(ctx, archivePath, sessions); err != nil {
		t.Fatalf("restore: %v", err)
	}

	var count int
	if err := handle.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM departments`).Scan(&count); err != nil {
		t.Fatalf("count departments: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected restored department, got %d rows", count)
	}
	if _, err := os.Stat(filepath.Join(paths.UploadDir, "stale.txt")); !os.IsNotExist(err) {
		t.Fatal("stale upload survived restore")
	}
	if exists, _ := client.Exists(ctx, "session:abc").Result(); exists != 0 {
		t.Fatal("sessions not purged after restore")
	}
}

func TestRestoreWaitsForInFlightRestore(t *testing.T) {
	svc, handle, _ := testService(t)
	sessions, _ := testSessions(t)
	ctx := context.Background()

	archivePath, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}

	// Hold the restore lock the way an in-flight restore would and
	// check a second upload waits instead of interleaving file swaps.
	svc.mu.Lock()
	done := make(chan error, 1)
	go func() { done <- svc.Restore(ctx, archivePath, sessions) }()
	select {
	case err := <-done:
		t.Fatalf("restore ran while another held the lock: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	svc.mu.Unlock()

	if err := <-done; err != nil {
		t.Fatalf("restore after lock released: %v", err)
	}
	if err := handle.Conn().PingContext(ctx); err != nil {
		t.Fatalf("database handle broken after restore: %v", err)
	}
}

func TestConcurrentRestoresDoNotInterleave(t *testing.T) {
	svc, handle, paths := testService(t)
	sessions, _ := testSessions(t)
	ctx := context.Background()

	makeArchive := func(marker, saveAs string) string {
		t.Helper()
		if err := os.RemoveAll(paths.UploadDir); err != nil {
			t.Fatalf("reset uploads: %v", err)
		}
		if err := os.MkdirAll(paths.UploadDir, 0o755); err != nil {
			t.Fatalf("mkdir uploads: %v", err)
		}
		if err := os.WriteFile(filepath.Join(paths.UploadDir, marker), []byte(marker), 0o644); err != nil {
			t.Fatalf("write marker: %v", err)
		}
		created, err := svc.Create(ctx)
		if err != nil {
			t.Fatalf("create backup: %v", err)
		}
		// Timestamps only resolve to the second; keep both archives.
		saved := filepath.Join(t.TempDir(), saveAs)
		if err := os.Rename(created, saved); err != nil {
			t.Fatalf("save archive: %v", err)
		}
		return saved
	}
	first := makeArchive("first.txt", "first.zip")
	second := makeArchive("second.txt", "second.zip")

	errs := make(chan error, 2)
	go func() { errs <- svc.Restore(ctx, first, sessions) }()
	go func() { errs <- svc.Restore(ctx, second, sessions) }()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent restore: %v", err)
		}
	}

	// Whichever restore ran last must win wholesale: exactly one
	// archive's marker, never a mix of both trees.
	entries, err := os.ReadDir(paths.UploadDir)
	if err != nil {
		t.Fatalf("read uploads: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("uploads hold %d entries after concurrent restores; want 1", len(entries))
	}
	name := entries[0].Name()
	if name != "first.txt" && name != "second.txt" {
		t.Fatalf("unexpected upload entry %q", name)
	}
	if err := handle.Conn().PingContext(ctx); err != nil {
		t.Fatalf("database handle broken after restores: %v", err)
	}
}

func TestTargetForSkipsTraversal(t *testing.T) {
	svc, _, _ := testService(t)
	for _, name := range []string{"../evil.db", "uploads/../../evil", "/etc/passwd", "other/file"} {
		if _, ok := svc.targetFor(name); ok {
			t.Fatalf("expected %q to be skipped", name)
		}
	}
	if _, ok := svc.targetFor("uploads/a/b.txt"); !ok {
		t.Fatal("expected uploads entry to map")
	}
}
