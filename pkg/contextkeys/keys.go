// Package contextkeys provides centralized context key definitions
//
// All context keys used across the engine are defined here so that the
// producers (ops server, CLI) and consumers (logger, audit trail) agree.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request or job correlation ID
	// Set by: ops server, maintenance jobs
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// ActorIDKey contains the ID of the user performing an operation
	// Set by: ops server from the identity proxy header, CLI flags
	// Used by: Logger, audit trail
	// Type: int64
	ActorIDKey Key = "actor_id"

	// LoggerKey contains *observability.Logger
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithActorID adds the acting user's ID to the context
func WithActorID(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, ActorIDKey, actorID)
}

// GetActorID retrieves the acting user's ID from context
func GetActorID(ctx context.Context) (int64, bool) {
	actorID, ok := ctx.Value(ActorIDKey).(int64)
	return actorID, ok
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
