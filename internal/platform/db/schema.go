package db

import (
	"context"
	"fmt"
)

// Schema mirrors what the lab application expects on disk. EnsureSchema
// runs at startup and is idempotent; migrations between versions of the
// storage file go through internal/migrate instead.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id INTEGER NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS departments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role_id INTEGER REFERENCES roles(id) ON DELETE SET NULL,
		department_id INTEGER REFERENCES departments(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		ip TEXT,
		ua TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		action TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lab_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lab_name TEXT,
		description TEXT,
		address TEXT,
		contact_number TEXT,
		email TEXT,
		logo_path TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS applicants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		gender TEXT,
		dob DATE,
		phone TEXT,
		email TEXT,
		occupation TEXT,
		city TEXT,
		state TEXT,
		country TEXT,
		remarks TEXT,
		overview TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sample_uid TEXT NOT NULL UNIQUE,
		applicant_id INTEGER NOT NULL REFERENCES applicants(id) ON DELETE CASCADE,
		assigned_staff_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		department_id INTEGER REFERENCES departments(id) ON DELETE SET NULL,
		sample_name TEXT,
		sample_type TEXT,
		collection_date TIMESTAMP,
		submission_date TIMESTAMP NOT NULL,
		storage_location TEXT,
		dispose_before DATE,
		current_status TEXT NOT NULL DEFAULT 'Submitted',
		remarks TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS diagnoses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sample_id INTEGER NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
		name TEXT,
		title TEXT,
		description TEXT,
		result TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category TEXT,
		quantity INTEGER NOT NULL DEFAULT 0,
		unit TEXT,
		location TEXT,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS equipment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		id_number TEXT NOT NULL UNIQUE,
		serial_number TEXT UNIQUE,
		name TEXT NOT NULL,
		location TEXT,
		make_model TEXT,
		purchase_date DATE,
		last_calibration_date DATE,
		multi_user BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS equipment_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		equipment_id INTEGER NOT NULL REFERENCES equipment(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		notes TEXT
	)`,
}

// EnsureSchema creates any missing table.
func EnsureSchema(ctx context.Context, h *Handle) error {
	for _, stmt := range schema {
		if _, err := h.Conn().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: ensure schema: %w", err)
		}
	}
	return nil
}
