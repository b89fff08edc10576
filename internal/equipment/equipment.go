package equipment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Equipment is one registered instrument.
type Equipment struct {
	ID                  int64
	IDNumber            string
	SerialNumber        string
	Name                string
	Location            string
	MakeModel           string
	PurchaseDate        *time.Time
	LastCalibrationDate *time.Time
	MultiUser           bool
	InUse               bool
}

// Input carries the editable fields of an instrument.
type Input struct {
	IDNumber            string
	SerialNumber        string
	Name                string
	Location            string
	MakeModel           string
	PurchaseDate        *time.Time
	LastCalibrationDate *time.Time
	MultiUser           bool
}

// UsageLog is one usage session of an instrument.
type UsageLog struct {
	ID          int64
	EquipmentID int64
	UserID      int64
	UserName    string
	StartTime   time.Time
	EndTime     *time.Time
	Notes       string
}

// ErrInUse rejects starting a session on a busy single-user
// instrument.
var ErrInUse = errors.New("equipment: already in use")

// Repository provides SQLite backed persistence for equipment.
type Repository struct {
	handle *db.Handle
}

// NewRepository constructs a repository.
func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle}
}

const equipmentColumns = `e.id, e.id_number, COALESCE(e.serial_number, ''), e.name,
	COALESCE(e.location, ''), COALESCE(e.make_model, ''),
	e.purchase_date, e.last_calibration_date, e.multi_user,
	EXISTS (SELECT 1 FROM equipment_logs l WHERE l.equipment_id = e.id AND l.end_time IS NULL)`

// List returns all instruments ordered by ID number.
func (r *Repository) List(ctx context.Context) ([]Equipment, error) {
	rows, err := r.handle.Conn().QueryContext(ctx,
		`SELECT `+equipmentColumns+` FROM equipment e ORDER BY e.id_number`)
	if err != nil {
		return nil, fmt.Errorf("equipment: list: %w", err)
	}
	defer rows.Close()

	var out []Equipment
	for rows.Next() {
		eq, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("equipment: scan: %w", err)
		}
		out = append(out, eq)
	}
	return out, rows.Err()
}

// Get returns one instrument by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Equipment, error) {
	rows, err := r.handle.Conn().QueryContext(ctx,
		`SELECT `+equipmentColumns+` FROM equipment e WHERE e.id = ?`, id)
	if err != nil {
		return Equipment{}, fmt.Errorf("equipment: get: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Equipment{}, err
		}
		return Equipment{}, shared.ErrNotFound
	}
	return scanEquipment(rows)
}

// Create registers an instrument.
func (r *Repository) Create(ctx context.Context, in Input) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx, `
		INSERT INTO equipment (id_number, serial_number, name, location, make_model,
			purchase_date, last_calibration_date, multi_user)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.IDNumber, nullableString(in.SerialNumber), in.Name, in.Location, in.MakeModel,
		nullableTime(in.PurchaseDate), nullableTime(in.LastCalibrationDate), in.MultiUser)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicateName
		}
		return 0, fmt.Errorf("equipment: create: %w", err)
	}
	return res.LastInsertId()
}

// Update rewrites an instrument's fields.
func (r *Repository) Update(ctx context.Context, id int64, in Input) error {
	res, err := r.handle.Conn().ExecContext(ctx, `
		UPDATE equipment SET id_number = ?, serial_number = ?, name = ?, location = ?,
			make_model = ?, purchase_date = ?, last_calibration_date = ?, multi_user = ?
		WHERE id = ?`,
		in.IDNumber, nullableString(in.SerialNumber), in.Name, in.Location, in.MakeModel,
		nullableTime(in.PurchaseDate), nullableTime(in.LastCalibrationDate), in.MultiUser, id)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateName
		}
		return fmt.Errorf("equipment: update: %w", err)
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

// Delete removes an instrument. Usage logs cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.handle.Conn().ExecContext(ctx, `DELETE FROM equipment WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("equipment: delete: %w", err)
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

// OpenLog returns the user's open session on an instrument, if any.
func (r *Repository) OpenLog(ctx context.Context, equipmentID, userID int64) (UsageLog, error) {
	return r.scanOneLog(ctx, `
		WHERE l.equipment_id = ? AND l.user_id = ? AND l.end_time IS NULL`,
		equipmentID, userID)
}

// HasOpenLog reports whether any session is open on an instrument.
func (r *Repository) HasOpenLog(ctx context.Context, equipmentID int64) (bool, error) {
	var count int
	err := r.handle.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM equipment_logs WHERE equipment_id = ? AND end_time IS NULL`,
		equipmentID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("equipment: open log check: %w", err)
	}
	return count > 0, nil
}

// StartLog opens a usage session.
func (r *Repository) StartLog(ctx context.Context, equipmentID, userID int64, notes string, at time.Time) (int64, error) {
	res, err := r.handle.Conn().ExecContext(ctx, `
		INSERT INTO equipment_logs (equipment_id, user_id, start_time, notes)
		VALUES (?, ?, ?, ?)`, equipmentID, userID, at, notes)
	if err != nil {
		return 0, fmt.Errorf("equipment: start log: %w", err)
	}
	return res.LastInsertId()
}

// CloseLog stamps the end of a usage session.
func (r *Repository) CloseLog(ctx context.Context, logID int64, at time.Time) error {
	res, err := r.handle.Conn().ExecContext(ctx,
		`UPDATE equipment_logs SET end_time = ? WHERE id = ? AND end_time IS NULL`, at, logID)
	if err != nil {
		return fmt.Errorf("equipment: close log: %w", err)
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

// ListLogs returns an instrument's usage history, newest first.
func (r *Repository) ListLogs(ctx context.Context, equipmentID int64) ([]UsageLog, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, `
		SELECT l.id, l.equipment_id, l.user_id, COALESCE(u.name, ''),
		       l.start_time, l.end_time, COALESCE(l.notes, '')
		FROM equipment_logs l
		LEFT JOIN users u ON u.id = l.user_id
		WHERE l.equipment_id = ?
		ORDER BY l.start_time DESC, l.id DESC`, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("equipment: list logs: %w", err)
	}
	defer rows.Close()

	var out []UsageLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("equipment: scan log: %w", err)
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

func (r *Repository) scanOneLog(ctx context.Context, where string, args ...any) (UsageLog, error) {
	rows, err := r.handle.Conn().QueryContext(ctx, `
		SELECT l.id, l.equipment_id, l.user_id, COALESCE(u.name, ''),
		       l.start_time, l.end_time, COALESCE(l.notes, '')
		FROM equipment_logs l
		LEFT JOIN users u ON u.id = l.user_id `+where+` LIMIT 1`, args...)
	if err != nil {
		return UsageLog{}, fmt.Errorf("equipment: query log: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return UsageLog{}, err
		}
		return UsageLog{}, shared.ErrNotFound
	}
	return scanLog(rows)
}

func scanEquipment(rows *sql.Rows) (Equipment, error) {
	var (
		eq          Equipment
		purchase    sql.NullTime
		calibration sql.NullTime
	)
	if err := rows.Scan(&eq.ID, &eq.IDNumber, &eq.SerialNumber, &eq.Name,
		&eq.Location, &eq.MakeModel, &purchase, &calibration, &eq.MultiUser, &eq.InUse); err != nil {
		return Equipment{}, err
	}
	if purchase.Valid {
		eq.PurchaseDate = &purchase.Time
	}
	if calibration.Valid {
		eq.LastCalibrationDate = &calibration.Time
	}
	return eq, nil
}

func scanLog(rows *sql.Rows) (UsageLog, error) {
	var (
		log UsageLog
		end sql.NullTime
	)
	if err := rows.Scan(&log.ID, &log.EquipmentID, &log.UserID, &log.UserName,
		&log.StartTime, &end, &log.Notes); err != nil {
		return UsageLog{}, err
	}
	if end.Valid {
		log.EndTime = &end.Time
	}
	return log, nil
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
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
