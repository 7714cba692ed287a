package invitations

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ehrops/pkg/observability"
)

// NoticeKind distinguishes first sends from resends
type NoticeKind string

const (
	NoticeCreated NoticeKind = "invitation.created"
	NoticeResent  NoticeKind = "invitation.resent"
)

// Notice is the payload handed to a Notifier
type Notice struct {
	Kind         NoticeKind `json:"kind"`
	InvitationID int64      `json:"invitation_id"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	Message      string     `json:"message,omitempty"`
	AcceptURL    string     `json:"accept_url"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// Notifier delivers invitation emails
type Notifier interface {
	Name() string
	Notify(ctx context.Context, notice Notice) error
}

// LogNotifier only logs notices. Used when no mail relay is configured.
type LogNotifier struct {
	logger *observability.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: observability.OrNop(logger)}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	n.logger.WithFields(map[string]interface{}{
		"kind":          string(notice.Kind),
		"invitation_id": notice.InvitationID,
		"email":         notice.Email,
		"role":          notice.Role,
		"expires_at":    notice.ExpiresAt,
	}).Info("Invitation notice (no mail relay configured)")
	return nil
}

// RetryConfig configures webhook delivery retries
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling zero fields with defaults
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether another attempt is allowed after attempts failures
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay returns initialDelay * multiplier^(attempts-1), capped at MaxDelay
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// permanentError marks a delivery failure that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// WebhookNotifier posts signed notices to a mail relay
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
	retry  *RetryPolicy
	logger *observability.Logger
}

// NewWebhookNotifier creates a notifier that POSTs JSON to endpoint. Payloads
// are signed with HMAC-SHA256 over secret in the X-Ehrops-Signature header.
func NewWebhookNotifier(endpoint, secret string, retry RetryConfig, logger *observability.Logger) (*WebhookNotifier, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q", endpoint)
	}
	return &WebhookNotifier{
		url:    endpoint,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  NewRetryPolicy(retry),
		logger: observability.OrNop(logger),
	}, nil
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify delivers notice, retrying transient failures with backoff
func (n *WebhookNotifier) Notify(ctx context.Context, notice Notice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	deliveryID := uuid.New().String()

	for attempt := 1; ; attempt++ {
		err = n.send(ctx, deliveryID, notice.Kind, payload)
		if err == nil {
			return nil
		}
		if !n.retry.ShouldRetry(attempt, err) {
			return fmt.Errorf("delivery %s failed after %d attempt(s): %w", deliveryID, attempt, err)
		}

		delay := n.retry.NextRetryDelay(attempt)
		n.logger.WithFields(map[string]interface{}{
			"delivery_id": deliveryID,
			"attempt":     attempt,
			"retry_in":    delay.String(),
		}).WithError(err).Warn("Invitation notice delivery failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("delivery %s cancelled: %w", deliveryID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (n *WebhookNotifier) send(ctx context.Context, deliveryID string, kind NoticeKind, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ehrops-Event", string(kind))
	req.Header.Set("X-Ehrops-Delivery", deliveryID)
	if n.secret != "" {
		req.Header.Set("X-Ehrops-Signature", generateSignature(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return &permanentError{fmt.Errorf("mail relay rejected notice: status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("mail relay returned status %d", resp.StatusCode)
	}
}

// VerifySignature checks a X-Ehrops-Signature header value against payload
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
