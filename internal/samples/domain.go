package samples

import "time"

// Statuses a sample moves through. Free-text statuses from older
// installations are kept as-is; these are what the form offers.
var Statuses = []string{
	"Submitted",
	"In Progress",
	"Analysis Complete",
	"Report Ready",
	"Disposed",
}

// DefaultStatus is assigned at intake.
const DefaultStatus = "Submitted"

// Sample is one tracked laboratory sample.
type Sample struct {
	ID              int64
	UID             string
	ApplicantID     int64
	ApplicantName   string
	AssignedStaffID *int64
	StaffName       string
	DepartmentID    *int64
	DepartmentName  string
	Name            string
	Type            string
	CollectionDate  *time.Time
	SubmissionDate  time.Time
	StorageLocation string
	DisposeBefore   *time.Time
	Status          string
	Remarks         string
}

// Input carries the editable fields of a sample.
type Input struct {
	ApplicantID     int64
	AssignedStaffID *int64
	DepartmentID    *int64
	Name            string
	Type            string
	CollectionDate  *time.Time
	StorageLocation string
	DisposeBefore   *time.Time
	Status          string
	Remarks         string
}

// Diagnosis is one test result recorded against a sample.
type Diagnosis struct {
	ID          int64
	SampleID    int64
	Name        string
	Title       string
	Description string
	Result      string
	CreatedAt   time.Time
}

// DiagnosisInput carries the editable fields of a diagnosis.
type DiagnosisInput struct {
	Name        string
	Title       string
	Description string
	Result      string
}
