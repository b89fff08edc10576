package samples

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Repository provides SQLite backed persistence for samples and their
// diagnoses.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

const sampleSelect = `
	SELECT s.id, s.sample_uid, s.applicant_id, a.name,
	       s.assigned_staff_id, COALESCE(u.name, ''),
	       s.department_id, COALESCE(d.name, ''),
	       COALESCE(s.sample_name, ''), COALESCE(s.sample_type, ''),
	       s.collection_date, s.submission_date,
	       COALESCE(s.storage_location, ''), s.dispose_before,
	       s.current_status, COALESCE(s.remarks, '')
	FROM samples s
	JOIN applicants a ON a.id = s.applicant_id
	LEFT JOIN users u ON u.id = s.assigned_staff_id
	LEFT JOIN departments d ON d.id = s.department_id`

// List returns samples matching search, newest first.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Sample, error) {
	pattern := "%" + search + "%"
	rows, err := r.handle.Conn().QueryContext(ctx, sampleSelect+`
		WHERE (? = '' OR s.sample_uid LIKE ? OR a.name LIKE ? OR s.sample_name LIKE ?)
		ORDER BY s.submission_date DESC, s.id DESC
		LIMIT ? OFFSET ?`,
		search, pattern, pattern, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("samples: list: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("samples: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of matching samples.
func (r *Repository) Count(ctx context.Context, search string) (int, error) {
	pattern := "%" + search + "%"
	var count int
	err := r.handle.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM samples s JOIN applicants a ON a.id = s.applicant_id
		WHERE (? = '' OR s.sample_uid LIKE ? OR a.name LIKE ? OR s.sample_name LIKE ?)`,
		search, pattern, pattern, pattern).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("samples: count: %w", err)
	}
	return count, nil
}

// ListByApplicant returns an applicant's samples, newest first.
func (r *Repository) ListByApplicant(ctx context.Context, applicantID int64) ([]Sample, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, sampleSelect+`
		WHERE s.applicant_id = ?
		ORDER BY s.submission_date DESC, s.id DESC`, applicantID)
	if err != nil {
		return nil, fmt.Errorf("samples: list by applicant: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("samples: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns one sample by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Sample, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, sampleSelect+` WHERE s.id = ?`, id)
	if err != nil {
		return Sample{}, fmt.Errorf("samples: get: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Sample{}, err
		}
		return Sample{}, shared.ErrNotFound
	}
	return scanSample(rows)
}

// Create inserts a sample with a caller-generated UID. A UID collision
// surfaces as ErrDuplicateName so the generator can retry.
func (r *Repository) Create(ctx context.Context, uid string, in Input, at time.Time) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx, `
		INSERT INTO samples (sample_uid, applicant_id, assigned_staff_id, department_id,
			sample_name, sample_type, collection_date, submission_date,
			storage_location, dispose_before, current_status, remarks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uid, in.ApplicantID, nullable(in.AssignedStaffID), nullable(in.DepartmentID),
		in.Name, in.Type, nullableTime(in.CollectionDate), at,
		in.StorageLocation, nullableTime(in.DisposeBefore), in.Status, in.Remarks)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicateName
		}
		return 0, fmt.Errorf("samples: create: %w", err)
	}
	return res.LastInsertId()
}

// Update rewrites a sample's editable fields. The UID and submission
// date are immutable.
func (r *Repository) Update(ctx context.Context, id int64, in Input) error {
	res, err := r.handle.Conn().ExecContext(ctx, `
		UPDATE samples SET assigned_staff_id = ?, department_id = ?, sample_name = ?,
			sample_type = ?, collection_date = ?, storage_location = ?,
			dispose_before = ?, current_status = ?, remarks = ?
		WHERE id = ?`,
		nullable(in.AssignedStaffID), nullable(in.DepartmentID), in.Name,
		in.Type, nullableTime(in.CollectionDate), in.StorageLocation,
		nullableTime(in.DisposeBefore), in.Status, in.Remarks, id)
	if err != nil {
		return fmt.Errorf("samples: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a sample. Diagnoses cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.handle.Conn().ExecContext(ctx, `DELETE FROM samples WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("samples: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListDiagnoses returns a sample's diagnoses, oldest first.
func (r *Repository) ListDiagnoses(ctx context.Context, sampleID int64) ([]Diagnosis, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, `
		SELECT id, sample_id, COALESCE(name, ''), COALESCE(title, ''),
		       COALESCE(description, ''), COALESCE(result, ''), created_at
		FROM diagnoses WHERE sample_id = ? ORDER BY created_at, id`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("samples: list diagnoses: %w", err)
	}
	defer rows.Close()

	var out []Diagnosis
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.SampleID, &d.Name, &d.Title, &d.Description, &d.Result, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("samples: scan diagnosis: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddDiagnosis records a diagnosis against a sample.
func (r *Repository) AddDiagnosis(ctx context.Context, sampleID int64, in DiagnosisInput, at time.Time) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx, `
		INSERT INTO diagnoses (sample_id, name, title, description, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sampleID, in.Name, in.Title, in.Description, in.Result, at)
	if err != nil {
		return 0, fmt.Errorf("samples: add diagnosis: %w", err)
	}
	return res.LastInsertId()
}

// DeleteDiagnosis removes one diagnosis.
func (r *Repository) DeleteDiagnosis(ctx context.Context, id int64) error {
	res, err := r.handle.Conn().ExecContext(ctx, `DELETE FROM diagnoses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("samples: delete diagnosis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanSample(rows *sql.Rows) (Sample, error) {
	var (
		s          Sample
		staffID    sql.NullInt64
		deptID     sql.NullInt64
		collection sql.NullTime
		dispose    sql.NullTime
	)
	if err := rows.Scan(&s.ID, &s.UID, &s.ApplicantID, &s.ApplicantName,
		&staffID, &s.StaffName, &deptID, &s.DepartmentName,
		&s.Name, &s.Type, &collection, &s.SubmissionDate,
		&s.StorageLocation, &dispose, &s.Status, &s.Remarks); err != nil {
		return Sample{}, err
	}
	if staffID.Valid {
		s.AssignedStaffID = &staffID.Int64
	}
	if deptID.Valid {
		s.DepartmentID = &deptID.Int64
	}
	if collection.Valid {
		s.CollectionDate = &collection.Time
	}
	if dispose.Valid {
		s.DisposeBefore = &dispose.Time
	}
	return s, nil
}

func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
