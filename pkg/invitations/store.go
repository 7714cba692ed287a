package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store persists invitations
type Store struct {
	q querier
}

// NewStore creates an invitation store over db
func NewStore(db *sql.DB) *Store {
	return &Store{q: db}
}

// WithTx returns a store that runs every statement in tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

const invitationColumns = `id, email, token, role, invited_by_user_id, message, expires_at, status,
	accepted_by_user_id, accepted_at, revoked_by, revoked_at, revoke_reason,
	last_sent_at, send_count, created_at, updated_at`

// Create inserts inv and sets its ID
func (s *Store) Create(ctx context.Context, inv *Invitation) error {
	query := `
		INSERT INTO invitations (
			email, token, role, invited_by_user_id, message, expires_at, status,
			last_sent_at, send_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := s.q.QueryRowContext(ctx, query,
		inv.Email, inv.Token, inv.Role, inv.InvitedByUserID, inv.Message, inv.ExpiresAt, string(inv.Status),
		nullTime(inv.LastSentAt), inv.SendCount, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.ID)
	if err != nil {
		return apperrors.FromStorage("failed to create invitation", err)
	}
	return nil
}

// Get returns an invitation by id
func (s *Store) Get(ctx context.Context, id int64) (*Invitation, error) {
	inv, err := scanInvitation(s.q.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("invitation", id)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get invitation", err)
	}
	return inv, nil
}

// GetByToken returns the invitation carrying token
func (s *Store) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	inv, err := scanInvitation(s.q.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("invitation", "token")
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get invitation", err)
	}
	return inv, nil
}

// FindActive returns the pending, unexpired invitation for email
func (s *Store) FindActive(ctx context.Context, email string, now time.Time) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		WHERE email = $1 AND status = $2 AND expires_at > $3
		ORDER BY id LIMIT 1`
	inv, err := scanInvitation(s.q.QueryRowContext(ctx, query, email, string(StatusPending), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("active invitation", email)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to find active invitation", err)
	}
	return inv, nil
}

// Update writes the mutable lifecycle columns of inv
func (s *Store) Update(ctx context.Context, inv *Invitation) error {
	query := `
		UPDATE invitations
		SET expires_at = $1, status = $2, accepted_by_user_id = $3, accepted_at = $4,
			revoked_by = $5, revoked_at = $6, revoke_reason = $7,
			last_sent_at = $8, send_count = $9, updated_at = $10
		WHERE id = $11
	`
	result, err := s.q.ExecContext(ctx, query,
		inv.ExpiresAt, string(inv.Status), nullInt64(inv.AcceptedByUserID), nullTime(inv.AcceptedAt),
		nullInt64(inv.RevokedBy), nullTime(inv.RevokedAt), inv.RevokeReason,
		nullTime(inv.LastSentAt), inv.SendCount, inv.UpdatedAt,
		inv.ID,
	)
	if err != nil {
		return apperrors.FromStorage("failed to update invitation", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Dependency("failed to get rows affected", err)
	}
	if n == 0 {
		return apperrors.NotFound("invitation", inv.ID)
	}
	return nil
}

// ExpirePending marks every pending invitation past its expiry as expired.
// When email is non-empty only that address is swept.
func (s *Store) ExpirePending(ctx context.Context, email string, now time.Time) (int64, error) {
	query := `UPDATE invitations SET status = $1, updated_at = $2 WHERE status = $3 AND expires_at <= $2`
	args := []interface{}{string(StatusExpired), now, string(StatusPending)}
	if email != "" {
		query += ` AND email = $4`
		args = append(args, email)
	}

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Dependency("failed to expire invitations", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Dependency("failed to get rows affected", err)
	}
	return n, nil
}

// List returns invitations newest first
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Invitation, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		where = append(where, fmt.Sprintf("email = $%d", len(args)))
	}

	query := `SELECT ` + invitationColumns + ` FROM invitations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency("failed to list invitations", err)
	}
	defer rows.Close()

	out := []Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, apperrors.Dependency("failed to scan invitation", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("failed to list invitations", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInvitation(row scanner) (*Invitation, error) {
	var (
		inv        Invitation
		status     string
		acceptedBy sql.NullInt64
		acceptedAt sql.NullTime
		revokedBy  sql.NullInt64
		revokedAt  sql.NullTime
		lastSentAt sql.NullTime
	)
	err := row.Scan(
		&inv.ID, &inv.Email, &inv.Token, &inv.Role, &inv.InvitedByUserID, &inv.Message, &inv.ExpiresAt, &status,
		&acceptedBy, &acceptedAt, &revokedBy, &revokedAt, &inv.RevokeReason,
		&lastSentAt, &inv.SendCount, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	inv.AcceptedByUserID = int64Ptr(acceptedBy)
	inv.AcceptedAt = timePtr(acceptedAt)
	inv.RevokedBy = int64Ptr(revokedBy)
	inv.RevokedAt = timePtr(revokedAt)
	inv.LastSentAt = timePtr(lastSentAt)
	inv.ExpiresAt = inv.ExpiresAt.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
