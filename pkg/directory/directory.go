package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/validation"
)

// AccessStatus gates whether the identity layer lets a user sign in
type AccessStatus string

const (
	AccessStatusActive  AccessStatus = "active"
	AccessStatusRevoked AccessStatus = "revoked"
	AccessStatusPending AccessStatus = "pending"
)

// Valid reports whether s is a known status
func (s AccessStatus) Valid() bool {
	switch s {
	case AccessStatusActive, AccessStatusRevoked, AccessStatusPending:
		return true
	}
	return false
}

// User is an account known to the operations backend
type User struct {
	ID           int64        `json:"id"`
	Email        string       `json:"email"`
	FullName     string       `json:"full_name"`
	Role         string       `json:"role"`
	AccessStatus AccessStatus `json:"access_status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HospitalStaff links a user to the hospital that employs them
type HospitalStaff struct {
	ID           int64 `json:"id"`
	UserID       int64 `json:"user_id"`
	HospitalID   int64 `json:"hospital_id"`
	IsLeadership bool  `json:"is_leadership"`
}

// Directory is the narrow user-storage boundary used by the engine
type Directory interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUserAccessStatus(ctx context.Context, id int64, status AccessStatus) (*User, error)
	GetHospitalStaffByUser(ctx context.Context, userID int64) (*HospitalStaff, error)
	ListHospitalProjectIDs(ctx context.Context, hospitalID int64) ([]int64, error)
	ListConsultantProjectIDs(ctx context.Context, userID int64) ([]int64, error)
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLDirectory implements Directory over database/sql
type SQLDirectory struct {
	q   querier
	now func() time.Time
}

// NewSQLDirectory creates a directory over db
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{q: db, now: time.Now}
}

// WithTx returns a copy of the directory that runs every statement in tx
func (d *SQLDirectory) WithTx(tx *sql.Tx) *SQLDirectory {
	return &SQLDirectory{q: tx, now: d.now}
}

var _ Directory = (*SQLDirectory)(nil)

const userColumns = `id, email, full_name, role, access_status, created_at, updated_at`

// GetUser returns a user by id
func (d *SQLDirectory) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(d.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user", id)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get user", err)
	}
	return user, nil
}

// GetUserByEmail matches the normalized email case-insensitively
func (d *SQLDirectory) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	normalized := validation.NormalizeEmail(email)
	user, err := scanUser(d.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, normalized))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user", normalized)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get user by email", err)
	}
	return user, nil
}

// UpdateUserAccessStatus sets a user's access status and returns the updated user
func (d *SQLDirectory) UpdateUserAccessStatus(ctx context.Context, id int64, status AccessStatus) (*User, error) {
	if !status.Valid() {
		return nil, apperrors.Validationf("invalid access status %q", status)
	}

	now := d.now().UTC().Truncate(time.Microsecond)
	result, err := d.q.ExecContext(ctx,
		`UPDATE users SET access_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now, id,
	)
	if err != nil {
		return nil, apperrors.Dependency("failed to update user access status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.Dependency("failed to get rows affected", err)
	}
	if n == 0 {
		return nil, apperrors.NotFound("user", id)
	}
	return d.GetUser(ctx, id)
}

// GetHospitalStaffByUser returns the staff record of a user, or a not-found error
func (d *SQLDirectory) GetHospitalStaffByUser(ctx context.Context, userID int64) (*HospitalStaff, error) {
	var staff HospitalStaff
	err := d.q.QueryRowContext(ctx,
		`SELECT id, user_id, hospital_id, is_leadership FROM hospital_staff WHERE user_id = $1`, userID,
	).Scan(&staff.ID, &staff.UserID, &staff.HospitalID, &staff.IsLeadership)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("hospital staff", userID)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get hospital staff", err)
	}
	return &staff, nil
}

// ListHospitalProjectIDs returns every project of a hospital
func (d *SQLDirectory) ListHospitalProjectIDs(ctx context.Context, hospitalID int64) ([]int64, error) {
	return d.queryIDs(ctx, "failed to list hospital projects",
		`SELECT id FROM projects WHERE hospital_id = $1 ORDER BY id`, hospitalID)
}

// ListConsultantProjectIDs returns the projects a user is scheduled on or staffed to
func (d *SQLDirectory) ListConsultantProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT s.project_id
		FROM schedule_assignments sa
		JOIN schedules s ON s.id = sa.schedule_id
		WHERE sa.user_id = $1
		UNION
		SELECT pta.project_id
		FROM project_team_assignments pta
		WHERE pta.user_id = $1
		ORDER BY 1
	`
	return d.queryIDs(ctx, "failed to list consultant projects", query, userID)
}

func (d *SQLDirectory) queryIDs(ctx context.Context, op, query string, args ...interface{}) ([]int64, error) {
	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency(op, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Dependency(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency(op, err)
	}
	return ids, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		user   User
		status string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &status, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.AccessStatus = AccessStatus(status)
	return &user, nil
}
