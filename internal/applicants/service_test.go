package applicants

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

func testSvc(t *testing.T) *Service {
	t.Helper()
	handle, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "laboratory.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	if err := db.EnsureSchema(context.Background(), handle); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	clock, err := shared.NewClock("Asia/Kolkata")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	return NewService(NewRepository(handle), clock)
}

func TestRegisterAssignsUID(t *testing.T) {
	svc := testSvc(t)
	applicant, err := svc.Register(context.Background(), Input{Name: "Asha Rao"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !regexp.MustCompile(`^[A-Z2-9]{10}$`).MatchString(applicant.UID) {
		t.Fatalf("unexpected uid %q", applicant.UID)
	}
	if applicant.CreatedAt.IsZero() {
		t.Fatal("created_at not set")
	}
}

func TestRegisterUIDsAreUnique(t *testing.T) {
	svc := testSvc(t)
	seen := make(map[string]bool)
	for i := 0; i < 25; i++ {
		applicant, err := svc.Register(context.Background(), Input{Name: "Applicant"})
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if seen[applicant.UID] {
			t.Fatalf("duplicate uid %q", applicant.UID)
		}
		seen[applicant.UID] = true
	}
}

func TestRegisterRequiresName(t *testing.T) {
	svc := testSvc(t)
	if _, err := svc.Register(context.Background(), Input{Name: "   "}); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestListSearchesNameAndUID(t *testing.T) {
	svc := testSvc(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, Input{Name: "Asha Rao"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Input{Name: "Vikram Shah"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := svc.List(ctx, "Asha", 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Applicants) != 1 || result.Applicants[0].ID != first.ID {
		t.Fatalf("name search failed: %+v", result.Applicants)
	}

	result, err = svc.List(ctx, first.UID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Applicants) != 1 || result.Applicants[0].ID != first.ID {
		t.Fatalf("uid search failed: %+v", result.Applicants)
	}
}
