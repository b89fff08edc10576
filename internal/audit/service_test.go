package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/samplyze/samplyze/internal/shared"
)

type stubRepo struct {
	inserted []struct {
		userID *int64
		action string
		at     time.Time
	}
	entries []Entry
	total   int

	gotSearch string
	gotLimit  int
	gotOffset int
}

func (s *stubRepo) Insert(_ context.Context, userID *int64, action string, at time.Time) error {
	s.inserted = append(s.inserted, struct {
		userID *int64
		action string
		at     time.Time
	}{userID, action, at})
	return nil
}

func (s *stubRepo) List(_ context.Context, search string, limit, offset int) ([]Entry, error) {
	s.gotSearch = search
	s.gotLimit = limit
	s.gotOffset = offset
	return s.entries, nil
}

func (s *stubRepo) ListAll(_ context.Context, search string) ([]Entry, error) {
	s.gotSearch = search
	return s.entries, nil
}

func (s *stubRepo) Count(_ context.Context, _ string) (int, error) {
	return s.total, nil
}

func testClock(t *testing.T) *shared.Clock {
	t.Helper()
	clock, err := shared.NewClock("Asia/Kolkata")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	return clock
}

func TestRecordStampsServerTime(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, testClock(t))

	userID := int64(7)
	if err := svc.Record(context.Background(), &userID, "Logged in"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(repo.inserted))
	}
	got := repo.inserted[0]
	if got.action != "Logged in" {
		t.Fatalf("unexpected action %q", got.action)
	}
	if got.at.Location().String() != "Asia/Kolkata" {
		t.Fatalf("expected IST timestamp, got %s", got.at.Location())
	}
	if time.Since(got.at) > time.Minute {
		t.Fatalf("timestamp not server-generated: %v", got.at)
	}
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	svc := NewService(&stubRepo{}, testClock(t))
	if err := svc.Record(context.Background(), nil, "   "); err == nil {
		t.Fatal("expected error for blank action")
	}
}

func TestTrailPaginationDefaults(t *testing.T) {
	repo := &stubRepo{total: 60}
	svc := NewService(repo, testClock(t))

	result, err := svc.Trail(context.Background(), Filters{Page: 2})
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if repo.gotLimit != 25 || repo.gotOffset != 25 {
		t.Fatalf("expected limit 25 offset 25, got %d/%d", repo.gotLimit, repo.gotOffset)
	}
	if result.Pagination.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", result.Pagination.TotalPages)
	}
}

func TestTrailTrimsSearch(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, testClock(t))

	if _, err := svc.Trail(context.Background(), Filters{Search: "  admin  "}); err != nil {
		t.Fatalf("trail: %v", err)
	}
	if repo.gotSearch != "admin" {
		t.Fatalf("expected trimmed search, got %q", repo.gotSearch)
	}
}

func TestWriteCSVUsesSystemPlaceholder(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	entries := []Entry{
		{ActorName: "Administrator", Action: "Deleted role 'Intern'", CreatedAt: time.Date(2026, 3, 1, 10, 30, 0, 0, loc)},
		{ActorName: "", Action: "Periodic backup created", CreatedAt: time.Date(2026, 3, 1, 2, 0, 0, 0, loc)},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries, loc); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "Timestamp,User,Action" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "Administrator") {
		t.Fatalf("expected actor name in row: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "2026-03-01 02:00:00,System,") {
		t.Fatalf("expected System placeholder row, got %q", lines[2])
	}
}
