package db

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx executes fn inside a transaction on the current connection.
func WithTx(ctx context.Context, h *Handle, fn func(*sql.Tx) error) error {
	tx, err := h.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
