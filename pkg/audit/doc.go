// Package audit records control-plane mutations for compliance and forensics.
//
// # Overview
//
// Role, permission-link, assignment and invitation mutations each emit one
// Event after they succeed. Events carry the acting user, the resource that
// changed and a correlation id taken from the request context (or generated).
//
// # Event Types
//
// Authorization: role_create, role_update, role_delete, permissions_set,
// role_assign, role_unassign
// Invitation: create, resend, revoke, accept, expire
// System: seed
//
// # Usage Example
//
//	audit.Record(ctx, auditLogger, logger, &audit.Event{
//		EventType:    audit.EventTypeRoleCreate,
//		ActorID:      &actorID,
//		ResourceType: audit.ResourceTypeRole,
//		ResourceID:   strconv.FormatInt(role.ID, 10),
//		Message:      "role created",
//	})
//
// Record never fails the caller; a failing sink is logged and ignored.
//
// # Sinks
//
// DBLogger writes to the audit_events table. LogSink writes events to the
// structured logger. MultiLogger fans out to several sinks. NoopLogger
// discards everything.
package audit
