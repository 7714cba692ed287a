package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/contextkeys"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/testutil"
)

type recordingLogger struct {
	events []*Event
	err    error
}

func (r *recordingLogger) Log(ctx context.Context, event *Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestRecord_FillsDefaults(t *testing.T) {
	sink := &recordingLogger{}
	ctx := contextkeys.WithRequestID(context.Background(), "req-123")
	ctx = contextkeys.WithActorID(ctx, 42)

	Record(ctx, sink, nil, &Event{
		EventType:    EventTypeRoleCreate,
		ResourceType: ResourceTypeRole,
		ResourceID:   "7",
	})

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, "req-123", event.CorrelationID)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, int64(42), *event.ActorID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestRecord_GeneratesCorrelationID(t *testing.T) {
	sink := &recordingLogger{}
	actor := int64(1)

	Record(context.Background(), sink, nil, &Event{EventType: EventTypeSeed, ActorID: &actor})

	require.Len(t, sink.events, 1)
	assert.Len(t, sink.events[0].CorrelationID, 36)
	assert.Equal(t, int64(1), *sink.events[0].ActorID)
}

func TestRecord_SinkFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)
	sink := &recordingLogger{err: errors.New("disk full")}

	Record(context.Background(), sink, logger, &Event{EventType: EventTypeInvitationCreate})

	assert.Contains(t, buf.String(), "failed to record audit event")
	assert.Contains(t, buf.String(), "disk full")
}

func TestRecord_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		Record(context.Background(), nil, nil, &Event{EventType: EventTypeSeed})
	})
}

func TestMultiLogger(t *testing.T) {
	failing := &recordingLogger{err: errors.New("boom")}
	ok := &recordingLogger{}
	multi := NewMultiLogger(failing, ok)

	err := multi.Log(context.Background(), &Event{EventType: EventTypeRoleDelete})
	assert.EqualError(t, err, "boom")
	assert.Len(t, ok.events, 1, "later sinks still receive the event")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(observability.NewLogger(observability.InfoLevel, &buf))
	actor := int64(5)

	err := sink.Log(context.Background(), &Event{
		EventType:     EventTypeInvitationRevoke,
		Status:        EventStatusSuccess,
		ActorID:       &actor,
		ResourceType:  ResourceTypeInvitation,
		ResourceID:    "9",
		Message:       "invitation revoked",
		Metadata:      map[string]interface{}{"reason": "left org"},
		CorrelationID: "corr",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"audit_event":"invitation.revoke"`)
	assert.Contains(t, out, `"meta_reason":"left org"`)
	assert.Contains(t, out, `"actor_id":5`)
}

func TestDBLogger(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	actor := int64(3)
	event := &Event{
		Timestamp:     time.Now().UTC(),
		EventType:     EventTypePermissionsSet,
		Status:        EventStatusSuccess,
		ActorID:       &actor,
		ResourceType:  ResourceTypeRole,
		ResourceID:    "11",
		Message:       "permissions replaced",
		Metadata:      map[string]interface{}{"count": 2},
		CorrelationID: "abc",
	}
	require.NoError(t, logger.Log(context.Background(), event))
	assert.NotZero(t, event.ID)

	var (
		eventType string
		metadata  string
		actorID   int64
	)
	err = db.QueryRow(`SELECT event_type, metadata, actor_id FROM audit_events WHERE id = $1`, event.ID).
		Scan(&eventType, &metadata, &actorID)
	require.NoError(t, err)
	assert.Equal(t, "authz.permissions_set", eventType)
	assert.JSONEq(t, `{"count":2}`, metadata)
	assert.Equal(t, int64(3), actorID)
}

func TestDBLogger_InsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO audit_events").WillReturnError(errors.New("connection reset"))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	err = logger.Log(context.Background(), &Event{EventType: EventTypeSeed, CorrelationID: "x"})
	assert.ErrorContains(t, err, "failed to insert audit event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDBLogger_NilDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}
