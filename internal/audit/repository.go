package audit

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/samplyze/samplyze/internal/platform/db"
)

// Repository provides SQLite backed persistence for the audit trail.
// The table is append-only: there are no update or delete statements.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

// Insert appends one entry.
func (r *Repository) Insert(ctx context.Context, userID *int64, action string, at time.Time) error {
	var uid any
	if userID != nil {
		uid = *userID
	}
	_, err := r.handle.Conn().ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, action, created_at) VALUES (?, ?, ?)`, uid, action, at)
	return err
}

const selectEntries = `
	SELECT a.id, a.user_id, COALESCE(u.name, ''), a.action, a.created_at
	FROM audit_logs a
	LEFT JOIN users u ON u.id = a.user_id
	WHERE (? = '' OR LOWER(u.name) LIKE ? OR LOWER(a.action) LIKE ?)
	ORDER BY a.created_at DESC, a.id DESC`

// List returns matching entries newest first, windowed by limit/offset.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Entry, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, selectEntries+` LIMIT ? OFFSET ?`,
		search, pattern(search), pattern(search), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListAll returns every matching entry newest first, for export.
func (r *Repository) ListAll(ctx context.Context, search string) ([]Entry, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, selectEntries,
		search, pattern(search), pattern(search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Count returns the number of matching entries.
func (r *Repository) Count(ctx context.Context, search string) (int, error) {
	var total int
	err := r.handle.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE (? = '' OR LOWER(u.name) LIKE ? OR LOWER(a.action) LIKE ?)`,
		search, pattern(search), pattern(search)).Scan(&total)
	return total, err
}

func collect(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var uid sql.NullInt64
		if err := rows.Scan(&entry.ID, &uid, &entry.ActorName, &entry.Action, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			entry.UserID = &uid.Int64
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func pattern(search string) string {
	return "%" + strings.ToLower(search) + "%"
}
