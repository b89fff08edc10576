package labarchive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

const archiveNamePrefix = "samplyze_archive_"

// Table is one table of an inspected archive file.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Service creates dated database snapshots and inspects uploaded ones.
// It works on raw SQLite files, independent of the repositories above.
type Service struct {
	logger     *slog.Logger
	handle     *db.Handle
	archiveDir string
	clock      *shared.Clock
}

// NewService constructs a Service writing archives into archiveDir.
func NewService(logger *slog.Logger, handle *db.Handle, archiveDir string, clock *shared.Clock) *Service {
	return &Service{logger: logger, handle: handle, archiveDir: archiveDir, clock: clock}
}

// Create snapshots the live database into a dated archive file and
// returns its path. VACUUM INTO produces a consistent standalone copy.
func (s *Service) Create(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("labarchive: create archive dir: %w", err)
	}
	name := archiveNamePrefix + s.clock.Stamp(s.clock.Now()) + ".db"
	target := filepath.Join(s.archiveDir, name)

	if _, err := s.handle.Conn().ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("labarchive: snapshot database: %w", err)
	}
	s.logger.Info("archive created", slog.String("path", target))
	return target, nil
}

// List returns archive filenames, newest first.
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.archiveDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("labarchive: read archive dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), archiveNamePrefix) && strings.HasSuffix(e.Name(), ".db") {
			names = append(names, e.Name())
		}
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}

// maxRowsPerTable caps the viewer so a large archive cannot blow up a
// single page render.
const maxRowsPerTable = 200

// Inspect opens the archive file at path read-only and returns its
// tables with their rows rendered as strings. An unreadable file
// yields ErrInvalidArchive.
func (s *Service) Inspect(ctx context.Context, path string) ([]Table, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, shared.ErrInvalidArchive
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return nil, shared.ErrInvalidArchive
	}

	names, err := listTables(ctx, conn)
	if err != nil {
		return nil, shared.ErrInvalidArchive
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		table, err := readTable(ctx, conn, name)
		if err != nil {
			s.logger.Warn("archive table unreadable",
				slog.String("table", name), slog.Any("error", err))
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func listTables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func readTable(ctx context.Context, conn *sql.DB, name string) (Table, error) {
	quoted := `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoted, maxRowsPerTable))
	if err != nil {
		return Table{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, err
	}

	table := Table{Name: name, Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = renderCell(v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, rows.Err()
}

func renderCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
