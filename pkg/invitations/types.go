package invitations

import (
	"time"
)

// Status is the lifecycle state of an invitation
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// Roles an invitation may grant
const (
	RoleAdmin              = "admin"
	RoleConsultant         = "consultant"
	RoleHospitalStaff      = "hospital_staff"
	RoleHospitalLeadership = "hospital_leadership"
)

// DefaultExpiryDays applies when a request does not set ExpiresInDays
const DefaultExpiryDays = 7

// DefaultResendExtension is how far a resend pushes out an expired invitation
const DefaultResendExtension = 7 * 24 * time.Hour

// Invitation gates creation of a new authorized account
type Invitation struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	Token            string     `json:"-"`
	Role             string     `json:"role"`
	InvitedByUserID  int64      `json:"invited_by_user_id"`
	Message          string     `json:"message,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	Status           Status     `json:"status"`
	AcceptedByUserID *int64     `json:"accepted_by_user_id,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	RevokedBy        *int64     `json:"revoked_by,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokeReason     string     `json:"revoke_reason,omitempty"`
	LastSentAt       *time.Time `json:"last_sent_at,omitempty"`
	SendCount        int        `json:"send_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsActive reports whether the invitation is pending and not yet past its expiry
func (i *Invitation) IsActive(now time.Time) bool {
	return i.Status == StatusPending && i.ExpiresAt.After(now)
}

// CreateRequest is the input to Manager.Create
type CreateRequest struct {
	Email           string `json:"email" validate:"required,looseemail"`
	Role            string `json:"role" validate:"required,oneof=admin consultant hospital_staff hospital_leadership"`
	InvitedByUserID int64  `json:"invited_by_user_id" validate:"gt=0"`
	Message         string `json:"message,omitempty" validate:"max=2000"`
	ExpiresInDays   int    `json:"expires_in_days,omitempty" validate:"omitempty,gte=1,lte=90"`
}

// ResendResult reports whether a resend had to extend the expiry
type ResendResult struct {
	Invitation *Invitation `json:"invitation"`
	Extended   bool        `json:"extended"`
	Message    string      `json:"message"`
}

const (
	resentMessage         = "Invitation resent"
	resentExtendedMessage = "Invitation resent with extended expiration"
)

// ListFilter narrows List results
type ListFilter struct {
	Status Status
	Email  string
	Limit  int
}
