// Package db manages the SQLite storage file shared by the application.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Handle wraps the SQLite connection so that restore can close the
// storage file, swap it on disk and reopen without rebuilding every
// repository. Repositories hold the Handle and call Conn per query.
type Handle struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
}

// Open creates the parent directory if needed and opens the storage file.
func Open(ctx context.Context, path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("platform/db: create instance dir: %w", err)
	}
	conn, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Handle{conn: conn, path: path}, nil
}

func open(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("platform/db: open: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}
	return conn, nil
}

// Conn returns the current connection.
func (h *Handle) Conn() *sql.DB {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

// Path returns the storage file location.
func (h *Handle) Path() string {
	return h.path
}

// Close releases the connection and the file lock on the storage file.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}

// Reopen re-establishes the connection after the storage file was
// replaced on disk.
func (h *Handle) Reopen(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		_ = h.conn.Close()
	}
	conn, err := open(ctx, h.path)
	if err != nil {
		return err
	}
	h.conn = conn
	return nil
}
