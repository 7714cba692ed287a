package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization model events
	EventTypeRoleCreate     EventType = "authz.role_create"
	EventTypeRoleUpdate     EventType = "authz.role_update"
	EventTypeRoleDelete     EventType = "authz.role_delete"
	EventTypePermissionsSet EventType = "authz.permissions_set"
	EventTypeRoleAssign     EventType = "authz.role_assign"
	EventTypeRoleUnassign   EventType = "authz.role_unassign"

	// Invitation events
	EventTypeInvitationCreate EventType = "invitation.create"
	EventTypeInvitationResend EventType = "invitation.resend"
	EventTypeInvitationRevoke EventType = "invitation.revoke"
	EventTypeInvitationAccept EventType = "invitation.accept"
	EventTypeInvitationExpire EventType = "invitation.expire"

	// System events
	EventTypeSeed EventType = "system.seed"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeAssignment ResourceType = "role_assignment"
	ResourceTypeInvitation ResourceType = "invitation"
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeCatalog    ResourceType = "catalog"
)

// Event represents a single audit log entry
type Event struct {
	ID            int64                  `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     EventType              `json:"event_type"`
	Status        EventStatus            `json:"status"`
	ActorID       *int64                 `json:"actor_id,omitempty"`
	ResourceType  ResourceType           `json:"resource_type"`
	ResourceID    string                 `json:"resource_id,omitempty"`
	Message       string                 `json:"message,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CorrelationID string                 `json:"correlation_id"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// metadataJSON renders Metadata for storage, "{}" when empty
func (e *Event) metadataJSON() (string, error) {
	if len(e.Metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
