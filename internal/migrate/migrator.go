package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
)

// Stats summarises one migration run.
type Stats struct {
	TablesMigrated int
	TablesSkipped  int
	RowsCopied     int
	Errors         []string
}

// replaceTables are copied wholesale: existing rows are removed first
// so the imported installation's settings and accounts win outright.
var replaceTables = map[string]bool{
	"lab_settings": true,
	"users":        true,
}

// Migrator copies data from an older installation's database file into
// the live one. Only tables and columns both sides share move over, so
// schema drift between versions degrades gracefully instead of failing
// the whole import.
type Migrator struct {
	logger *slog.Logger
	handle *db.Handle
}

// NewMigrator constructs a Migrator.
func NewMigrator(logger *slog.Logger, handle *db.Handle) *Migrator {
	return &Migrator{logger: logger, handle: handle}
}

// Run imports every shared table from the database at sourcePath.
// A table that fails is skipped and reported; only a source that
// cannot be opened at all aborts the run.
func (m *Migrator) Run(ctx context.Context, sourcePath string) (Stats, error) {
	stats := Stats{}

	src, err := sql.Open("sqlite3", "file:"+sourcePath+"?mode=ro")
	if err != nil {
		return stats, fmt.Errorf("migrate: open source database: %w", err)
	}
	defer src.Close()
	if err := src.PingContext(ctx); err != nil {
		return stats, fmt.Errorf("migrate: open source database: %w", err)
	}

	tables, err := listTables(ctx, src)
	if err != nil {
		return stats, fmt.Errorf("migrate: read source schema: %w", err)
	}

	dest := m.handle.Conn()
	for _, table := range tables {
		copied, err := m.migrateTable(ctx, src, dest, table)
		if err != nil {
			stats.TablesSkipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", table, err))
			m.logger.Warn("table skipped during migration",
				slog.String("table", table), slog.Any("error", err))
			continue
		}
		stats.TablesMigrated++
		stats.RowsCopied += copied
	}
	m.logger.Info("migration finished",
		slog.Int("tables", stats.TablesMigrated),
		slog.Int("skipped", stats.TablesSkipped),
		slog.Int("rows", stats.RowsCopied))
	return stats, nil
}

// listTables enumerates user tables in the source database.
func listTables(ctx context.Context, src *sql.DB) ([]string, error) {
	rows, err := src.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (m *Migrator) migrateTable(ctx context.Context, src, dest *sql.DB, table string) (int, error) {
	destCols, err := tableColumns(ctx, dest, table)
	if err != nil {
		return 0, err
	}
	if len(destCols) == 0 {
		return 0, fmt.Errorf("table not present in current schema")
	}
	srcCols, err := tableColumns(ctx, src, table)
	if err != nil {
		return 0, err
	}

	shared := intersect(srcCols, destCols)
	if len(shared) == 0 {
		return 0, fmt.Errorf("no shared columns")
	}

	tx, err := dest.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if replaceTables[table] {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
			return 0, err
		}
	}

	copied, err := copyRows(ctx, src, tx, table, shared)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return copied, nil
}

func copyRows(ctx context.Context, src *sql.DB, tx *sql.Tx, table string, cols []string) (int, error) {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	colList := strings.Join(quoted, ", ")

	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", colList, quoteIdent(table)))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	// INSERT OR IGNORE keeps rows the live database already has; the
	// replace tables were emptied before this loop.
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s) VALUES (%s)", quoteIdent(table), colList, placeholders))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	copied := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return 0, err
		}
		copied++
	}
	return copied, rows.Err()
}

// tableColumns returns the column names of table, or nil when the
// table does not exist.
func tableColumns(ctx context.Context, conn *sql.DB, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			deflt     sql.NullString
			isPrimary int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &deflt, &isPrimary); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// intersect keeps src columns that also exist in dest, preserving the
// source order.
func intersect(src, dest []string) []string {
	in := make(map[string]bool, len(dest))
	for _, c := range dest {
		in[strings.ToLower(c)] = true
	}
	var shared []string
	for _, c := range src {
		if in[strings.ToLower(c)] {
			shared = append(shared, c)
		}
	}
	return shared
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
