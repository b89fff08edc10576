package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samplyze/samplyze/internal/shared"
)

// RepositoryPort defines the persistence the service needs.
type RepositoryPort interface {
	Insert(ctx context.Context, userID *int64, action string, at time.Time) error
	List(ctx context.Context, search string, limit, offset int) ([]Entry, error)
	ListAll(ctx context.Context, search string) ([]Entry, error)
	Count(ctx context.Context, search string) (int, error)
}

// Result holds one page of trail entries.
type Result struct {
	Entries    []Entry
	Pagination shared.Pagination
}

// Service coordinates the audit trail. All timestamps come from the
// configured clock, never from the host's local zone.
type Service struct {
	repo  RepositoryPort
	clock *shared.Clock
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, clock *shared.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// Record appends one entry with a server-generated timestamp. A nil
// userID marks a system action.
func (s *Service) Record(ctx context.Context, userID *int64, action string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("audit: service not configured")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return fmt.Errorf("audit: action required")
	}
	return s.repo.Insert(ctx, userID, action, s.clock.Now())
}

// Trail returns one page of entries, newest first.
func (s *Service) Trail(ctx context.Context, filters Filters) (Result, error) {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	search := strings.TrimSpace(filters.Search)
	total, err := s.repo.Count(ctx, search)
	if err != nil {
		return Result{}, err
	}
	entries, err := s.repo.List(ctx, search, pageSize, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	return Result{Entries: entries, Pagination: shared.NewPagination(page, pageSize, total)}, nil
}

// Export returns every matching entry for download, newest first.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	return s.repo.ListAll(ctx, strings.TrimSpace(filters.Search))
}

// Location exposes the export timezone.
func (s *Service) Location() *time.Location {
	return s.clock.Location()
}
