package applicants

import "time"

// Applicant is one registered sample submitter.
type Applicant struct {
	ID         int64
	UID        string
	Name       string
	Gender     string
	DOB        *time.Time
	Phone      string
	Email      string
	Occupation string
	City       string
	State      string
	Country    string
	Remarks    string
	Overview   string
	CreatedAt  time.Time
}

// Input carries the editable fields of an applicant.
type Input struct {
	Name       string
	Gender     string
	DOB        *time.Time
	Phone      string
	Email      string
	Occupation string
	City       string
	State      string
	Country    string
	Remarks    string
	Overview   string
}
