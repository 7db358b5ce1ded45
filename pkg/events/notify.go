package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/contextkeys"
	"github.com/platinummonkey/arena/pkg/observability"
)

// InvitationNotice is what an invitee needs to accept an invitation
type InvitationNotice struct {
	InvitationID  int64     `json:"invitation_id"`
	Email         string    `json:"email"`
	Token         string    `json:"token"`
	AcceptURL     string    `json:"accept_url,omitempty"`
	EventPublicID uuid.UUID `json:"event_public_id"`
	EventName     string    `json:"event_name"`
	InvitedBy     int64     `json:"invited_by"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Notifier delivers invitations to invitees. Delivery is best effort: a
// failure never undoes the invitation.
type Notifier interface {
	NotifyInvitation(ctx context.Context, notice InvitationNotice) error
}

// AcceptURL appends the token to base as the "token" query parameter. An
// empty base yields an empty URL.
func AcceptURL(base, token string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// LogNotifier records invitations in the structured log. It is the default
// when no webhook is configured.
type LogNotifier struct {
	logger *observability.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("component", "invitations")}
}

func (n *LogNotifier) NotifyInvitation(ctx context.Context, notice InvitationNotice) error {
	n.logger.WithFields(map[string]interface{}{
		"invitation_id": notice.InvitationID,
		"event_id":      notice.EventPublicID.String(),
		"email":         notice.Email,
		"token":         auth.Redact(notice.Token),
		"expires_at":    notice.ExpiresAt,
	}).Info("invitation issued")
	return nil
}

// SignatureHeader carries the HMAC-SHA256 of the webhook body
const SignatureHeader = "X-Arena-Signature"

// WebhookNotifier POSTs invitations as signed JSON to an external mailer
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. Outgoing requests carry
// trace context.
func NewWebhookNotifier(endpoint, secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    endpoint,
		secret: secret,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (n *WebhookNotifier) NotifyInvitation(ctx context.Context, notice InvitationNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal invitation notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Arena-Event", "event.invitation_create")
	req.Header.Set("X-Arena-Delivery", time.Now().UTC().Format(time.RFC3339))
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send invitation webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("invitation webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the "sha256=<hex>" HMAC of payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by Sign in constant time
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
