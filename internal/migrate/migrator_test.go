package migrate

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/samplyze/samplyze/internal/platform/db"
)

func testMigrator(t *testing.T) (*Migrator, *db.Handle) {
	t.Helper()
	handle, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "laboratory.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	if err := db.EnsureSchema(context.Background(), handle); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewMigrator(logger, handle), handle
}

// sourceDB builds an old-version database file and returns its path.
func sourceDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "old.db")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	defer conn.Close()
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func TestRunCopiesSharedTables(t *testing.T) {
	m, handle := testMigrator(t)
	src := sourceDB(t,
		`CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO departments (id, name) VALUES (1, 'Pathology'), (2, 'Serology')`,
	)

	stats, err := m.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.TablesMigrated != 1 {
		t.Fatalf("expected 1 table migrated, got %d (errors: %v)", stats.TablesMigrated, stats.Errors)
	}
	if stats.RowsCopied != 2 {
		t.Fatalf("expected 2 rows copied, got %d", stats.RowsCopied)
	}

	var count int
	if err := handle.Conn().QueryRow(`SELECT COUNT(*) FROM departments`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 departments, got %d", count)
	}
}

func TestRunSkipsUnknownTable(t *testing.T) {
	m, _ := testMigrator(t)
	src := sourceDB(t,
		`CREATE TABLE widgets (id INTEGER PRIMARY KEY, label TEXT)`,
		`INSERT INTO widgets (id, label) VALUES (1, 'x')`,
		`CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO departments (id, name) VALUES (1, 'Pathology')`,
	)

	stats, err := m.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.TablesMigrated != 1 || stats.TablesSkipped != 1 {
		t.Fatalf("expected 1 migrated / 1 skipped, got %d/%d", stats.TablesMigrated, stats.TablesSkipped)
	}
	if len(stats.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %v", stats.Errors)
	}
}

func TestRunIgnoresExistingRowsExceptReplaceTables(t *testing.T) {
	m, handle := testMigrator(t)
	ctx := context.Background()

	if _, err := handle.Conn().ExecContext(ctx,
		`INSERT INTO departments (id, name) VALUES (1, 'Existing')`); err != nil {
		t.Fatalf("seed department: %v", err)
	}
	if _, err := handle.Conn().ExecContext(ctx,
		`INSERT INTO users (id, username, name, password_hash) VALUES (1, 'admin', 'Administrator', 'hash-live')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	src := sourceDB(t,
		`CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO departments (id, name) VALUES (1, 'Imported')`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT, name TEXT, password_hash TEXT, legacy_flag INTEGER)`,
		`INSERT INTO users (id, username, name, password_hash, legacy_flag) VALUES (1, 'admin', 'Old Admin', 'hash-old', 1)`,
	)

	if _, err := m.Run(ctx, src); err != nil {
		t.Fatalf("run: %v", err)
	}

	// merged table: existing row wins
	var deptName string
	if err := handle.Conn().QueryRow(`SELECT name FROM departments WHERE id = 1`).Scan(&deptName); err != nil {
		t.Fatalf("read department: %v", err)
	}
	if deptName != "Existing" {
		t.Fatalf("expected existing department kept, got %q", deptName)
	}

	// replaced table: imported row wins, unknown source column dropped
	var userName, hash string
	if err := handle.Conn().QueryRow(`SELECT name, password_hash FROM users WHERE id = 1`).Scan(&userName, &hash); err != nil {
		t.Fatalf("read user: %v", err)
	}
	if userName != "Old Admin" || hash != "hash-old" {
		t.Fatalf("expected imported user to replace live one, got %q/%q", userName, hash)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	m, handle := testMigrator(t)
	src := sourceDB(t,
		`CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO departments (id, name) VALUES (1, 'Pathology')`,
	)

	for i := 0; i < 2; i++ {
		if _, err := m.Run(context.Background(), src); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	var count int
	if err := handle.Conn().QueryRow(`SELECT COUNT(*) FROM departments`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 department after double import, got %d", count)
	}
}

func TestRunFailsOnMissingSource(t *testing.T) {
	m, _ := testMigrator(t)
	if _, err := m.Run(context.Background(), filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Fatal("expected error opening missing source")
	}
}
