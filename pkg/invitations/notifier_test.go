package invitations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func sampleNotice() Notice {
	return Notice{
		Kind:         NoticeCreated,
		InvitationID: 42,
		Email:        "new@example.com",
		Role:         RoleConsultant,
		AcceptURL:    "https://ops.example.com/accept?token=abc",
		ExpiresAt:    baseTime,
	}
}

func TestWebhookNotifier_SignsPayload(t *testing.T) {
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, string(NoticeCreated), r.Header.Get("X-Ehrops-Event"))
		_, err = uuid.Parse(r.Header.Get("X-Ehrops-Delivery"))
		assert.NoError(t, err)
		assert.True(t, VerifySignature(body, r.Header.Get("X-Ehrops-Signature"), "relay-secret"))

		var notice Notice
		require.NoError(t, json.Unmarshal(body, &notice))
		assert.Equal(t, "new@example.com", notice.Email)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, "relay-secret", fastRetry(), nil)
	require.NoError(t, err)
	assert.Equal(t, "webhook", notifier.Name())

	require.NoError(t, notifier.Notify(context.Background(), sampleNotice()))
	assert.Equal(t, int32(1), received.Load())
}

func TestWebhookNotifier_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	deliveries := make(map[string]bool)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveries[r.Header.Get("X-Ehrops-Delivery")] = true
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, "", fastRetry(), nil)
	require.NoError(t, err)

	require.NoError(t, notifier.Notify(context.Background(), sampleNotice()))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Len(t, deliveries, 1, "retries reuse the delivery id")
}

func TestWebhookNotifier_GivesUp(t *testing.T) {
	t.Run("after max attempts", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		notifier, err := NewWebhookNotifier(server.URL, "", fastRetry(), nil)
		require.NoError(t, err)

		err = notifier.Notify(context.Background(), sampleNotice())
		assert.ErrorContains(t, err, "after 3 attempt(s)")
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("on client errors", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		notifier, err := NewWebhookNotifier(server.URL, "", fastRetry(), nil)
		require.NoError(t, err)

		err = notifier.Notify(context.Background(), sampleNotice())
		assert.Error(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("when cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		cfg := fastRetry()
		cfg.InitialDelay = time.Minute
		cfg.MaxDelay = time.Minute
		notifier, err := NewWebhookNotifier(server.URL, "", cfg, nil)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err = notifier.Notify(ctx, sampleNotice())
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestNewWebhookNotifier_InvalidURL(t *testing.T) {
	_, err := NewWebhookNotifier("not a url", "", RetryConfig{}, nil)
	assert.Error(t, err)
}

func TestRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second})

	assert.Equal(t, time.Second, policy.NextRetryDelay(0))
	assert.Equal(t, time.Second, policy.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextRetryDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextRetryDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextRetryDelay(4))

	transient := errors.New("connection reset")
	assert.False(t, policy.ShouldRetry(1, nil))
	assert.True(t, policy.ShouldRetry(1, transient))
	assert.False(t, policy.ShouldRetry(DefaultRetryConfig().MaxAttempts, transient))
	assert.False(t, policy.ShouldRetry(1, &permanentError{transient}))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Notify(context.Background(), sampleNotice()))
}
