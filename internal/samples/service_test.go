package samples

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/samplyze/samplyze/internal/applicants"
	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

func testSvc(t *testing.T) (*Service, *applicants.Service) {
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
	return NewService(NewRepository(handle), clock),
		applicants.NewService(applicants.NewRepository(handle), clock)
}

func seedApplicant(t *testing.T, svc *applicants.Service) applicants.Applicant {
	t.Helper()
	applicant, err := svc.Register(context.Background(), applicants.Input{Name: "Asha Rao"})
	if err != nil {
		t.Fatalf("seed applicant: %v", err)
	}
	return applicant
}

func TestSubmitAssignsUIDAndStatus(t *testing.T) {
	svc, applicantSvc := testSvc(t)
	applicant := seedApplicant(t, applicantSvc)

	sample, err := svc.Submit(context.Background(), Input{ApplicantID: applicant.ID, Name: "Soil batch"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !regexp.MustCompile(`^SMP\d{9}$`).MatchString(sample.UID) {
		t.Fatalf("unexpected uid %q", sample.UID)
	}
	if sample.Status != DefaultStatus {
		t.Fatalf("expected status %q, got %q", DefaultStatus, sample.Status)
	}
	if sample.ApplicantName != "Asha Rao" {
		t.Fatalf("applicant not joined: %+v", sample)
	}
}

func TestSubmitRequiresApplicant(t *testing.T) {
	svc, _ := testSvc(t)
	if _, err := svc.Submit(context.Background(), Input{}); err == nil {
		t.Fatal("expected error for missing applicant")
	}
}

func TestDiagnosesLifecycle(t *testing.T) {
	svc, applicantSvc := testSvc(t)
	applicant := seedApplicant(t, applicantSvc)
	ctx := context.Background()

	sample, err := svc.Submit(ctx, Input{ApplicantID: applicant.ID})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	id, err := svc.AddDiagnosis(ctx, sample.ID, DiagnosisInput{Name: "pH", Result: "6.4"})
	if err != nil {
		t.Fatalf("add diagnosis: %v", err)
	}
	diagnoses, err := svc.Diagnoses(ctx, sample.ID)
	if err != nil {
		t.Fatalf("list diagnoses: %v", err)
	}
	if len(diagnoses) != 1 || diagnoses[0].Name != "pH" {
		t.Fatalf("unexpected diagnoses %+v", diagnoses)
	}

	if err := svc.DeleteDiagnosis(ctx, id); err != nil {
		t.Fatalf("delete diagnosis: %v", err)
	}
	diagnoses, err = svc.Diagnoses(ctx, sample.ID)
	if err != nil {
		t.Fatalf("list diagnoses: %v", err)
	}
	if len(diagnoses) != 0 {
		t.Fatalf("expected no diagnoses, got %+v", diagnoses)
	}
}

func TestDeleteSampleCascadesDiagnoses(t *testing.T) {
	svc, applicantSvc := testSvc(t)
	applicant := seedApplicant(t, applicantSvc)
	ctx := context.Background()

	sample, err := svc.Submit(ctx, Input{ApplicantID: applicant.ID})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.AddDiagnosis(ctx, sample.ID, DiagnosisInput{Name: "pH"}); err != nil {
		t.Fatalf("add diagnosis: %v", err)
	}
	if err := svc.Delete(ctx, sample.ID); err != nil {
		t.Fatalf("delete sample: %v", err)
	}
	if _, err := svc.Get(ctx, sample.ID); err != shared.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
