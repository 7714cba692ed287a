package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// DBLogger implements audit logging to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log logs an audit event to the database and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	metadata, err := event.metadataJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var actorID sql.NullInt64
	if event.ActorID != nil {
		actorID = sql.NullInt64{Int64: *event.ActorID, Valid: true}
	}

	query := `
		INSERT INTO audit_events (
			event_type, actor_id, resource_type, resource_id, status,
			message, metadata, correlation_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err = l.db.QueryRowContext(ctx, query,
		string(event.EventType), actorID, string(event.ResourceType), event.ResourceID,
		string(event.Status), event.Message, metadata, event.CorrelationID, event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
