package labsettings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/samplyze/samplyze/internal/platform/db"
)

// Settings is the laboratory's singleton profile row.
type Settings struct {
	ID            int64
	LabName       string
	Description   string
	Address       string
	ContactNumber string
	Email         string
	LogoPath      string
}

// DefaultLabName seeds a fresh installation.
const DefaultLabName = "Samplyze Laboratory"

// Service reads and writes the single lab_settings row.
type Service struct {
	handle *db.Handle
}

// NewService builds a Service instance.
func NewService(handle *db.Handle) *Service {
	return &Service{handle: handle}
}

// EnsureDefaults inserts the profile row if the table is empty.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	var count int
	if err := s.handle.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lab_settings`).Scan(&count); err != nil {
		return fmt.Errorf("labsettings: count: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err := s.handle.Conn().ExecContext(ctx,
		`INSERT INTO lab_settings (lab_name, description, address, contact_number, email, logo_path)
		 VALUES (?, '', '', '', '', '')`, DefaultLabName)
	if err != nil {
		return fmt.Errorf("labsettings: seed: %w", err)
	}
	return nil
}

// Get returns the profile. After a migration imports an older row the
// lowest ID wins; extra rows are ignored.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.handle.Conn().QueryRowContext(ctx,
		`SELECT id, COALESCE(lab_name, ''), COALESCE(description, ''), COALESCE(address, ''),
		        COALESCE(contact_number, ''), COALESCE(email, ''), COALESCE(logo_path, '')
		 FROM lab_settings ORDER BY id LIMIT 1`).
		Scan(&out.ID, &out.LabName, &out.Description, &out.Address,
			&out.ContactNumber, &out.Email, &out.LogoPath)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{LabName: DefaultLabName}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("labsettings: get: %w", err)
	}
	return out, nil
}

// Update rewrites the profile fields.
func (s *Service) Update(ctx context.Context, in Settings) error {
	in.LabName = strings.TrimSpace(in.LabName)
	if in.LabName == "" {
		return fmt.Errorf("labsettings: lab name required")
	}
	current, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if current.ID == 0 {
		if err := s.EnsureDefaults(ctx); err != nil {
			return err
		}
		current, err = s.Get(ctx)
		if err != nil {
			return err
		}
	}
	_, err = s.handle.Conn().ExecContext(ctx,
		`UPDATE lab_settings SET lab_name = ?, description = ?, address = ?,
		 contact_number = ?, email = ?, logo_path = ? WHERE id = ?`,
		in.LabName, in.Description, in.Address, in.ContactNumber, in.Email, in.LogoPath, current.ID)
	if err != nil {
		return fmt.Errorf("labsettings: update: %w", err)
	}
	return nil
}
