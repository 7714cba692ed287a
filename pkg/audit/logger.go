package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ehrops/pkg/contextkeys"
	"github.com/platinummonkey/ehrops/pkg/observability"
)

// Logger is the interface for audit sinks
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NoopLogger discards events
type NoopLogger struct{}

// Log implements Logger
func (NoopLogger) Log(ctx context.Context, event *Event) error { return nil }

// LogSink writes events to the structured logger
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink over logger
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: observability.OrNop(logger)}
}

// Log implements Logger
func (s *LogSink) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_event":    string(event.EventType),
		"status":         string(event.Status),
		"resource_type":  string(event.ResourceType),
		"resource_id":    event.ResourceID,
		"correlation_id": event.CorrelationID,
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	s.logger.WithFields(fields).Info(event.Message)
	return nil
}

// MultiLogger logs to multiple audit sinks in order
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every sink
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every sink and returns the first error. A failing sink does not
// stop the others.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Record fills defaults on event and hands it to sink. Failures are logged, never
// returned: the mutation being audited has already committed.
func Record(ctx context.Context, sink Logger, logger *observability.Logger, event *Event) {
	if sink == nil {
		return
	}
	prepare(ctx, event)
	if err := sink.Log(ctx, event); err != nil {
		observability.FromContext(ctx, logger).
			WithError(err).
			WithField("audit_event", string(event.EventType)).
			Warn("failed to record audit event")
	}
}

func prepare(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}
	if event.ActorID == nil {
		if actorID, ok := contextkeys.GetActorID(ctx); ok {
			event.ActorID = &actorID
		}
	}
	if event.CorrelationID == "" {
		event.CorrelationID = contextkeys.GetRequestID(ctx)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.New().String()
	}
}
