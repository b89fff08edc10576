package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Repository provides SQLite backed persistence for inventory items.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

const itemColumns = `id, sku, name, COALESCE(category, ''), quantity, COALESCE(unit, ''), COALESCE(location, ''), updated_at`

// List returns all items ordered by name.
func (r *Repository) List(ctx context.Context) ([]Item, error) {
	rows, err := r.handle.Conn().QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("inventory: scan: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Get returns one item by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Item, error) {
	rows, err := r.handle.Conn().QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: get: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Item{}, err
		}
		return Item{}, shared.ErrNotFound
	}
	return scanItem(rows)
}

// GetBySKU returns one item by SKU.
func (r *Repository) GetBySKU(ctx context.Context, sku string) (Item, error) {
	rows, err := r.handle.Conn().QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE sku = ?`, sku)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: get by sku: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Item{}, err
		}
		return Item{}, shared.ErrNotFound
	}
	return scanItem(rows)
}

// Create inserts an item and returns its ID.
func (r *Repository) Create(ctx context.Context, in ItemInput, at time.Time) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx,
		`INSERT INTO inventory_items (sku, name, category, quantity, unit, location, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.SKU, in.Name, in.Category, in.Quantity, in.Unit, in.Location, at)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicateName
		}
		return 0, fmt.Errorf("inventory: create: %w", err)
	}
	return res.LastInsertId()
}

// Update rewrites an item's fields.
func (r *Repository) Update(ctx context.Context, id int64, in ItemInput, at time.Time) error {
	res, err := r.handle.Conn().ExecContext(ctx,
		`UPDATE inventory_items SET sku = ?, name = ?, category = ?, quantity = ?, unit = ?, location = ?, updated_at = ?
		 WHERE id = ?`,
		in.SKU, in.Name, in.Category, in.Quantity, in.Unit, in.Location, at, id)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateName
		}
		return fmt.Errorf("inventory: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an item.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.handle.Conn().ExecContext(ctx,
		`DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("inventory: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanItem(rows *sql.Rows) (Item, error) {
	var item Item
	if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &item.Category,
		&item.Quantity, &item.Unit, &item.Location, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
