package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/platinummonkey/ehrops/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v (%s)", err, buf.String())
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)

		if entry["level"] != "info" {
			t.Errorf("Expected level info, got %v", entry["level"])
		}
		if entry["message"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["message"])
		}
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		logger.Error("error message")
		if strings.Count(buf.String(), "\n") != 2 {
			t.Errorf("Expected two log lines, got %q", buf.String())
		}
	})
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"role_id": 3,
		"email":   "new@example.com",
	}).WithError(errors.New("smtp down")).Debugf("dispatch failed for %s", "new@example.com")

	entry := decodeEntry(t, &buf)
	if entry["email"] != "new@example.com" {
		t.Errorf("Expected email field, got %v", entry["email"])
	}
	if entry["role_id"] != float64(3) {
		t.Errorf("Expected role_id 3, got %v", entry["role_id"])
	}
	if entry["error"] != "smtp down" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NopLogger()
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-123")
	ctx = contextkeys.WithActorID(ctx, 9)

	FromContext(ctx, nil).Info("hello")

	entry := decodeEntry(t, &buf)
	if entry["request_id"] != "req-123" {
		t.Errorf("Expected request_id req-123, got %v", entry["request_id"])
	}
	if entry["actor_id"] != float64(9) {
		t.Errorf("Expected actor_id 9, got %v", entry["actor_id"])
	}
}

func TestFromContext_Fallback(t *testing.T) {
	var buf bytes.Buffer
	fallback := NewLogger(InfoLevel, &buf)

	FromContext(context.Background(), fallback).Info("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Errorf("Expected fallback logger to be used, got %q", buf.String())
	}

	// nil fallback must not panic
	FromContext(context.Background(), nil).Info("discarded")
}
