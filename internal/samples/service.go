package samples

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/samplyze/samplyze/internal/shared"
)

const (
	uidPrefix   = "SMP"
	uidDigits   = 9
	uidAttempts = 5
)

// Result is one page of samples.
type Result struct {
	Samples    []Sample
	Pagination shared.Pagination
}

// Service coordinates sample tracking.
type Service struct {
	repo  *Repository
	clock *shared.Clock
}

// NewService builds a Service instance.
func NewService(repo *Repository, clock *shared.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// List returns one page of samples.
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
	return Result{Samples: items, Pagination: shared.NewPagination(page, pageSize, total)}, nil
}

// ListByApplicant returns an applicant's samples.
func (s *Service) ListByApplicant(ctx context.Context, applicantID int64) ([]Sample, error) {
	return s.repo.ListByApplicant(ctx, applicantID)
}

// Get returns one sample.
func (s *Service) Get(ctx context.Context, id int64) (Sample, error) {
	return s.repo.Get(ctx, id)
}

// Submit registers a sample with a fresh UID and the intake status.
func (s *Service) Submit(ctx context.Context, in Input) (Sample, error) {
	if in.ApplicantID == 0 {
		return Sample{}, fmt.Errorf("samples: applicant required")
	}
	if in.Status == "" {
		in.Status = DefaultStatus
	}
	for attempt := 0; attempt < uidAttempts; attempt++ {
		uid, err := generateSampleUID()
		if err != nil {
			return Sample{}, err
		}
		id, err := s.repo.Create(ctx, uid, in, s.clock.Now())
		if errors.Is(err, shared.ErrDuplicateName) {
			continue
		}
		if err != nil {
			return Sample{}, err
		}
		return s.repo.Get(ctx, id)
	}
	return Sample{}, fmt.Errorf("samples: could not allocate a unique uid")
}

// Update rewrites a sample's fields.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	if in.Status == "" {
		in.Status = DefaultStatus
	}
	return s.repo.Update(ctx, id, in)
}

// Delete removes a sample and its diagnoses.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// Diagnoses returns a sample's diagnosis records.
func (s *Service) Diagnoses(ctx context.Context, sampleID int64) ([]Diagnosis, error) {
	return s.repo.ListDiagnoses(ctx, sampleID)
}

// AddDiagnosis records a test result against a sample.
func (s *Service) AddDiagnosis(ctx context.Context, sampleID int64, in DiagnosisInput) (int64, error) {
	if _, err := s.repo.Get(ctx, sampleID); err != nil {
		return 0, err
	}
	return s.repo.AddDiagnosis(ctx, sampleID, in, s.clock.Now())
}

// DeleteDiagnosis removes one diagnosis record.
func (s *Service) DeleteDiagnosis(ctx context.Context, id int64) error {
	return s.repo.DeleteDiagnosis(ctx, id)
}

// generateSampleUID produces SMP followed by nine random digits.
func generateSampleUID() (string, error) {
	limit := big.NewInt(10)
	var sb strings.Builder
	sb.WriteString(uidPrefix)
	for i := 0; i < uidDigits; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("samples: generate uid: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}
