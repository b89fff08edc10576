package equipment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samplyze/samplyze/internal/shared"
)

// Service wraps the equipment register and usage log rules.
type Service struct {
	repo  *Repository
	clock *shared.Clock
}

// NewService constructs the equipment service.
func NewService(repo *Repository, clock *shared.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// List returns all registered instruments.
func (s *Service) List(ctx context.Context) ([]Equipment, error) {
	return s.repo.List(ctx)
}

// Get returns one instrument.
func (s *Service) Get(ctx context.Context, id int64) (Equipment, error) {
	return s.repo.Get(ctx, id)
}

// Register adds an instrument to the register.
func (s *Service) Register(ctx context.Context, in Input) (Equipment, error) {
	norm, err := normalize(in)
	if err != nil {
		return Equipment{}, err
	}
	id, err := s.repo.Create(ctx, norm)
	if err != nil {
		return Equipment{}, err
	}
	return s.repo.Get(ctx, id)
}

// Update rewrites an instrument's details.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	norm, err := normalize(in)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, id, norm)
}

// Delete removes an instrument and its usage history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// StartUsage opens a usage session. A single-user instrument refuses
// a second open session; a user never holds two open sessions on the
// same instrument.
func (s *Service) StartUsage(ctx context.Context, equipmentID, userID int64, notes string) (UsageLog, error) {
	eq, err := s.repo.Get(ctx, equipmentID)
	if err != nil {
		return UsageLog{}, err
	}
	if _, err := s.repo.OpenLog(ctx, equipmentID, userID); err == nil {
		return UsageLog{}, ErrInUse
	} else if !errors.Is(err, shared.ErrNotFound) {
		return UsageLog{}, err
	}
	if !eq.MultiUser {
		busy, err := s.repo.HasOpenLog(ctx, equipmentID)
		if err != nil {
			return UsageLog{}, err
		}
		if busy {
			return UsageLog{}, ErrInUse
		}
	}
	id, err := s.repo.StartLog(ctx, equipmentID, userID, strings.TrimSpace(notes), s.clock.Now())
	if err != nil {
		return UsageLog{}, err
	}
	return s.repo.scanOneLog(ctx, "WHERE l.id = ?", id)
}

// EndUsage closes the user's open session on an instrument.
func (s *Service) EndUsage(ctx context.Context, equipmentID, userID int64) error {
	log, err := s.repo.OpenLog(ctx, equipmentID, userID)
	if err != nil {
		return err
	}
	return s.repo.CloseLog(ctx, log.ID, s.clock.Now())
}

// Logs returns an instrument's usage history.
func (s *Service) Logs(ctx context.Context, equipmentID int64) ([]UsageLog, error) {
	return s.repo.ListLogs(ctx, equipmentID)
}

func normalize(in Input) (Input, error) {
	in.IDNumber = strings.TrimSpace(in.IDNumber)
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	in.MakeModel = strings.TrimSpace(in.MakeModel)
	if in.IDNumber == "" || in.Name == "" {
		return Input{}, fmt.Errorf("equipment: id number and name required")
	}
	return in, nil
}
