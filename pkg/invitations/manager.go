package invitations

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/async"
	"github.com/platinummonkey/ehrops/pkg/audit"
	"github.com/platinummonkey/ehrops/pkg/directory"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/validation"
)

// PermissionManage is required to issue, resend or revoke invitations
const PermissionManage = "invitations:manage"

const notifyTimeout = 30 * time.Second

// Authorizer checks that a user holds a permission
type Authorizer interface {
	Require(ctx context.Context, userID int64, permission string, projectID *int64) error
}

// Config wires a Manager. DB is required; everything else has a default.
type Config struct {
	DB         *sql.DB
	Notifier   Notifier
	Authorizer Authorizer
	Audit      audit.Logger
	Logger     *observability.Logger
	Metrics    *observability.Metrics

	// Runner dispatches notifications in the background when set;
	// otherwise they are sent inline.
	Runner *async.Runner

	DefaultExpiryDays int
	ResendExtension   time.Duration
	AcceptBaseURL     string
}

// Manager owns the invitation lifecycle:
//
//	pending -> accepted | revoked | expired
//	expired -> pending (resend only)
//
// Accepted invitations may still be revoked, which also revokes the user.
type Manager struct {
	db       *sql.DB
	store    *Store
	dir      *directory.SQLDirectory
	notifier Notifier
	authz    Authorizer
	audit    audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
	runner   *async.Runner

	expiryDays      int
	resendExtension time.Duration
	acceptBaseURL   string
	now             func() time.Time
}

// NewManager creates an invitation manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("invitation manager requires a database")
	}
	logger := observability.OrNop(cfg.Logger)
	m := &Manager{
		db:              cfg.DB,
		store:           NewStore(cfg.DB),
		dir:             directory.NewSQLDirectory(cfg.DB),
		notifier:        cfg.Notifier,
		authz:           cfg.Authorizer,
		audit:           cfg.Audit,
		logger:          logger,
		metrics:         cfg.Metrics,
		runner:          cfg.Runner,
		expiryDays:      cfg.DefaultExpiryDays,
		resendExtension: cfg.ResendExtension,
		acceptBaseURL:   cfg.AcceptBaseURL,
		now:             time.Now,
	}
	if m.notifier == nil {
		m.notifier = NewLogNotifier(logger)
	}
	if m.expiryDays <= 0 {
		m.expiryDays = DefaultExpiryDays
	}
	if m.resendExtension <= 0 {
		m.resendExtension = DefaultResendExtension
	}
	return m, nil
}

// WithClock overrides the time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) clock() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

// Get returns an invitation by id
func (m *Manager) Get(ctx context.Context, id int64) (*Invitation, error) {
	return m.store.Get(ctx, id)
}

// GetByToken returns the invitation carrying token
func (m *Manager) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	if token == "" {
		return nil, apperrors.Validation("token is required")
	}
	return m.store.GetByToken(ctx, token)
}

// List returns invitations matching filter, newest first
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]Invitation, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.Validationf("invalid invitation status %q", filter.Status)
	}
	filter.Email = validation.NormalizeEmail(filter.Email)
	return m.store.List(ctx, filter)
}

// Create issues a new invitation and sends it. Notification failures are
// logged and never undo the created invitation.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (inv *Invitation, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveOperation("create_invitation", start, err) }()

	req.Email = validation.NormalizeEmail(req.Email)
	req.Role = strings.TrimSpace(req.Role)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, req.InvitedByUserID); err != nil {
		return nil, err
	}

	now := m.clock()
	if _, err := m.store.ExpirePending(ctx, req.Email, now); err != nil {
		return nil, err
	}

	_, err = m.store.FindActive(ctx, req.Email, now)
	if err == nil {
		return nil, apperrors.Conflict("an active invitation already exists for this email")
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	user, err := m.dir.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil && user.AccessStatus == directory.AccessStatusActive:
		return nil, apperrors.Conflict("a user with this email already has active access")
	case err != nil && !apperrors.IsNotFound(err):
		return nil, err
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, apperrors.Dependency("failed to generate invitation token", err)
	}

	days := req.ExpiresInDays
	if days == 0 {
		days = m.expiryDays
	}
	inv = &Invitation{
		Email:           req.Email,
		Token:           token,
		Role:            req.Role,
		InvitedByUserID: req.InvitedByUserID,
		Message:         strings.TrimSpace(req.Message),
		ExpiresAt:       now.AddDate(0, 0, days),
		Status:          StatusPending,
		LastSentAt:      &now,
		SendCount:       1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.Create(ctx, inv); err != nil {
		return nil, m.pendingConflict(ctx, inv, err)
	}

	m.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"email":         inv.Email,
		"role":          inv.Role,
		"expires_at":    inv.ExpiresAt,
	}).Info("Invitation created")
	m.metrics.RecordInvitationEvent("created")
	m.record(ctx, req.InvitedByUserID, audit.EventTypeInvitationCreate, inv, "invitation created",
		map[string]interface{}{"email": inv.Email, "role": inv.Role})

	m.dispatch(ctx, NoticeCreated, inv)
	return inv, nil
}

// Resend re-sends an invitation. Expired invitations, by status or by clock,
// get a fresh expiry and return to pending; others keep token and expiry.
func (m *Manager) Resend(ctx context.Context, id, actorID int64) (result *ResendResult, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveOperation("resend_invitation", start, err) }()

	if err := m.authorize(ctx, actorID); err != nil {
		return nil, err
	}

	inv, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case StatusRevoked:
		return nil, apperrors.Conflict("cannot resend a revoked invitation")
	case StatusAccepted:
		return nil, apperrors.Conflict("cannot resend an accepted invitation")
	}

	now := m.clock()
	extended := inv.Status == StatusExpired || !inv.ExpiresAt.After(now)
	if extended {
		if _, err := m.store.ExpirePending(ctx, inv.Email, now); err != nil {
			return nil, err
		}
		other, err := m.store.FindActive(ctx, inv.Email, now)
		if err == nil && other.ID != inv.ID {
			return nil, apperrors.Conflict("an active invitation already exists for this email")
		}
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, err
		}
		inv.ExpiresAt = now.Add(m.resendExtension)
		inv.Status = StatusPending
	}
	inv.SendCount++
	inv.LastSentAt = &now
	inv.UpdatedAt = now

	if err := m.store.Update(ctx, inv); err != nil {
		return nil, m.pendingConflict(ctx, inv, err)
	}

	result = &ResendResult{Invitation: inv, Extended: extended, Message: resentMessage}
	if extended {
		result.Message = resentExtendedMessage
	}

	m.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"extended":      extended,
		"send_count":    inv.SendCount,
	}).Info(result.Message)
	m.metrics.RecordInvitationEvent("resent")
	m.record(ctx, actorID, audit.EventTypeInvitationResend, inv, result.Message,
		map[string]interface{}{"extended": extended})

	m.dispatch(ctx, NoticeResent, inv)
	return result, nil
}

// Revoke marks an invitation revoked. If it was already accepted the
// accepting user's access is revoked in the same transaction. Revoking a
// revoked invitation returns it unchanged.
func (m *Manager) Revoke(ctx context.Context, id, revokedBy int64, reason string) (inv *Invitation, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveOperation("revoke_invitation", start, err) }()

	if err := m.authorize(ctx, revokedBy); err != nil {
		return nil, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Dependency("failed to begin transaction", err)
	}
	defer tx.Rollback()

	store := m.store.WithTx(tx)
	inv, err = store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusRevoked {
		return inv, nil
	}

	now := m.clock()
	inv.Status = StatusRevoked
	inv.RevokedBy = &revokedBy
	inv.RevokedAt = &now
	inv.RevokeReason = strings.TrimSpace(reason)
	inv.UpdatedAt = now
	if err := store.Update(ctx, inv); err != nil {
		return nil, err
	}

	if inv.AcceptedByUserID != nil {
		_, err := m.dir.WithTx(tx).UpdateUserAccessStatus(ctx, *inv.AcceptedByUserID, directory.AccessStatusRevoked)
		switch {
		case apperrors.IsNotFound(err):
			m.logger.WithField("user_id", *inv.AcceptedByUserID).Warn("Accepted invitation references a missing user")
		case err != nil:
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Dependency("failed to commit invitation revocation", err)
	}

	meta := map[string]interface{}{"reason": inv.RevokeReason}
	if inv.AcceptedByUserID != nil {
		meta["revoked_user_id"] = *inv.AcceptedByUserID
	}
	m.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"revoked_by":    revokedBy,
	}).Info("Invitation revoked")
	m.metrics.RecordInvitationEvent("revoked")
	m.record(ctx, revokedBy, audit.EventTypeInvitationRevoke, inv, "invitation revoked", meta)
	return inv, nil
}

// Accept redeems token for userID. The invitation must be pending and
// unexpired and issued to the user's email. The user becomes active.
func (m *Manager) Accept(ctx context.Context, token string, userID int64) (inv *Invitation, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveOperation("accept_invitation", start, err) }()

	if token == "" {
		return nil, apperrors.Validation("token is required")
	}
	if userID <= 0 {
		return nil, apperrors.Validation("user_id must be positive")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Dependency("failed to begin transaction", err)
	}
	defer tx.Rollback()

	store := m.store.WithTx(tx)
	dir := m.dir.WithTx(tx)

	inv, err = store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("invitation is %s", inv.Status))
	}

	now := m.clock()
	if !inv.ExpiresAt.After(now) {
		inv.Status = StatusExpired
		inv.UpdatedAt = now
		if err := store.Update(ctx, inv); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, apperrors.Dependency("failed to commit invitation expiry", err)
		}
		m.metrics.RecordInvitationsExpired(1)
		return nil, apperrors.Conflict("invitation has expired")
	}

	user, err := dir.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if validation.NormalizeEmail(user.Email) != inv.Email {
		return nil, apperrors.Validation("invitation was issued to a different email")
	}

	inv.Status = StatusAccepted
	inv.AcceptedByUserID = &userID
	inv.AcceptedAt = &now
	inv.UpdatedAt = now
	if err := store.Update(ctx, inv); err != nil {
		return nil, err
	}
	if _, err := dir.UpdateUserAccessStatus(ctx, userID, directory.AccessStatusActive); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Dependency("failed to commit invitation acceptance", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"user_id":       userID,
	}).Info("Invitation accepted")
	m.metrics.RecordInvitationEvent("accepted")
	m.record(ctx, userID, audit.EventTypeInvitationAccept, inv, "invitation accepted",
		map[string]interface{}{"role": inv.Role})
	return inv, nil
}

// ExpireOldInvitations moves every pending invitation past its expiry to
// expired and returns how many changed. Safe to call repeatedly.
func (m *Manager) ExpireOldInvitations(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveOperation("expire_invitations", start, err) }()

	n, err = m.store.ExpirePending(ctx, "", m.clock())
	if err != nil {
		return 0, err
	}

	m.metrics.RecordInvitationsExpired(n)
	if n > 0 {
		m.logger.WithField("count", n).Info("Expired stale invitations")
		audit.Record(ctx, m.audit, m.logger, &audit.Event{
			EventType:    audit.EventTypeInvitationExpire,
			ResourceType: audit.ResourceTypeInvitation,
			Message:      fmt.Sprintf("expired %d invitation(s)", n),
			Metadata:     map[string]interface{}{"count": n},
		})
	}
	return n, nil
}

// AcceptURL returns the link embedded in the invitation email
func (m *Manager) AcceptURL(token string) string {
	if m.acceptBaseURL == "" {
		return ""
	}
	return m.acceptBaseURL + "?token=" + url.QueryEscape(token)
}

func (m *Manager) dispatch(ctx context.Context, kind NoticeKind, inv *Invitation) {
	notice := Notice{
		Kind:         kind,
		InvitationID: inv.ID,
		Email:        inv.Email,
		Role:         inv.Role,
		Message:      inv.Message,
		AcceptURL:    m.AcceptURL(inv.Token),
		ExpiresAt:    inv.ExpiresAt,
	}
	send := func(ctx context.Context) error {
		err := m.notifier.Notify(ctx, notice)
		if err != nil {
			m.metrics.RecordNotificationFailure(m.notifier.Name())
			m.logger.WithField("invitation_id", inv.ID).WithError(err).Warn("Failed to send invitation notice")
		}
		return nil
	}

	if m.runner != nil {
		m.runner.Go(ctx, notifyTimeout, "invitation notice "+strconv.FormatInt(inv.ID, 10), send)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	_ = send(ctx)
}

func (m *Manager) authorize(ctx context.Context, actorID int64) error {
	if m.authz == nil {
		return nil
	}
	return m.authz.Require(ctx, actorID, PermissionManage, nil)
}

func (m *Manager) record(ctx context.Context, actorID int64, eventType audit.EventType, inv *Invitation, message string, metadata map[string]interface{}) {
	event := &audit.Event{
		EventType:    eventType,
		ResourceType: audit.ResourceTypeInvitation,
		ResourceID:   strconv.FormatInt(inv.ID, 10),
		Message:      message,
		Metadata:     metadata,
	}
	if actorID > 0 {
		event.ActorID = &actorID
	}
	audit.Record(ctx, m.audit, m.logger, event)
}

// pendingConflict turns a write that lost the race for the one pending
// invitation per email into a conflict.
func (m *Manager) pendingConflict(ctx context.Context, inv *Invitation, err error) error {
	if inv.Status != StatusPending {
		return err
	}
	other, ferr := m.store.FindActive(ctx, inv.Email, inv.UpdatedAt)
	if apperrors.IsConflict(err) || (ferr == nil && other.ID != inv.ID) {
		return apperrors.Conflict("an active invitation already exists for this email")
	}
	return err
}
