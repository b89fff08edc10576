package applicants

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/samplyze/samplyze/internal/shared"
)

const (
	uidLength   = 10
	uidAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	uidAttempts = 5
)

// Result is one page of applicants.
type Result struct {
	Applicants []Applicant
	Pagination shared.Pagination
}

// Service coordinates applicant intake.
type Service struct {
	repo  *Repository
	clock *shared.Clock
}

// NewService builds a Service instance.
func NewService(repo *Repository, clock *shared.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// List returns one page of applicants.
func (s *Service) List(ctx context.Context, search string, page int) (Result, error) {
	const pageSize = 20
	if page <= 0 {
		page = 1
	}
	search = strings.TrimSpace(search)
	total, err := s.repo.Count(ctx, search)
	if err != nil {
		return Result{}, err
	}
	items, err := s.repo.List(ctx, search, pageSize, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	return Result{Applicants: items, Pagination: shared.NewPagination(page, pageSize, total)}, nil
}

// Get returns one applicant.
func (s *Service) Get(ctx context.Context, id int64) (Applicant, error) {
	return s.repo.Get(ctx, id)
}

// Register creates an applicant with a fresh UID, retrying the
// generator on the unlikely collision.
func (s *Service) Register(ctx context.Context, in Input) (Applicant, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Applicant{}, fmt.Errorf("applicants: name required")
	}
	for attempt := 0; attempt < uidAttempts; attempt++ {
		uid, err := generateUID()
		if err != nil {
			return Applicant{}, err
		}
		id, err := s.repo.Create(ctx, uid, in, s.clock.Now())
		if errors.Is(err, shared.ErrDuplicateName) {
			continue
		}
		if err != nil {
			return Applicant{}, err
		}
		return s.repo.Get(ctx, id)
	}
	return Applicant{}, fmt.Errorf("applicants: could not allocate a unique uid")
}

// Update rewrites an applicant's profile.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("applicants: name required")
	}
	return s.repo.Update(ctx, id, in)
}

// Delete removes an applicant and, through the schema, their samples.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// generateUID produces a 10-character alphanumeric identifier. The
// alphabet drops lookalike characters so UIDs survive being read over
// the phone.
func generateUID() (string, error) {
	buf := make([]byte, uidLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("applicants: generate uid: %w", err)
	}
	out := make([]byte, uidLength)
	for i, b := range buf {
		out[i] = uidAlphabet[int(b)%len(uidAlphabet)]
	}
	return string(out), nil
}
