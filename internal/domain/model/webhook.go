package model

import (
	"encoding/json"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Webhook is a subscription for verdict notifications owned by one principal.
// FailureCount is a rolling counter maintained by the dispatcher: a 2xx
// delivery resets it, anything else increments it. The dispatcher never
// retries a failed delivery; the counter exists so a surrounding system can
// suspend noisy endpoints.
type Webhook struct {
	ID           string    `json:"id"                       db:"id"`
	OwnerID      string    `json:"owner_id"                 db:"owner_id"`
	URL          string    `json:"url"                      db:"url"`
	Secret       string    `json:"secret"                   db:"secret"`
	Events       []string  `json:"events"                   db:"events"`
	Active       bool      `json:"active"                   db:"active"`
	FailureCount int       `json:"failure_count"            db:"failure_count"`
	PayloadFilter string   `json:"payload_filter,omitempty" db:"payload_filter"`
	CreatedAt    time.Time `json:"created_at"               db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"               db:"updated_at"`
}

// SubscribedTo returns true if the webhook subscribes to the given event.
// An empty event set subscribes to everything.
func (w *Webhook) SubscribedTo(event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	return slices.Contains(w.Events, event)
}

// CreateWebhookRequest represents a request to register a new webhook.
type CreateWebhookRequest struct {
	OwnerID       string   `json:"owner_id"`
	URL           string   `json:"url"`
	Secret        string   `json:"secret"`
	Events        []string `json:"events,omitempty"`
	PayloadFilter string   `json:"payload_filter,omitempty"`
}

// Validate validates the CreateWebhookRequest fields.
func (r *CreateWebhookRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if strings.TrimSpace(r.Secret) == "" {
		return errors.New("secret is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("url must be an absolute URL")
	}
	return nil
}

// WebhookDelivery is an append-only record of one delivery attempt.
type WebhookDelivery struct {
	ID            string          `json:"id"                       db:"id"`
	WebhookID     string          `json:"webhook_id"               db:"webhook_id"`
	Event         string          `json:"event"                    db:"event"`
	Payload       json.RawMessage `json:"payload"                  db:"payload"`
	Success       bool            `json:"success"                  db:"success"`
	StatusCode    int             `json:"status_code"              db:"status_code"`
	ResponseBody  string          `json:"response_body,omitempty"  db:"response_body"`
	BodyTruncated bool            `json:"body_truncated,omitempty" db:"body_truncated"`
	Error         string          `json:"error,omitempty"          db:"error"`
	CreatedAt     time.Time       `json:"created_at"               db:"created_at"`
}

// NotificationPayload is the canonical webhook body for verification events.
// The HMAC signature is computed over its exact serialized bytes.
type NotificationPayload struct {
	Event        string        `json:"event"`
	RequestID    string        `json:"request_id"`
	ClientRef    string        `json:"client_ref,omitempty"`
	DocumentType string        `json:"document_type"`
	Status       RequestStatus `json:"status"`
	Confidence   int           `json:"confidence"`
	RiskScore    float64       `json:"risk_score"`
	Timestamp    time.Time     `json:"timestamp"`
}

// BulkNotificationPayload is the canonical webhook body for bulk completion events.
type BulkNotificationPayload struct {
	Event     string     `json:"event"`
	BulkJobID string     `json:"bulk_job_id"`
	Status    BulkStatus `json:"status"`
	Total     int        `json:"total"`
	Verified  int        `json:"verified"`
	Rejected  int        `json:"rejected"`
	Failed    int        `json:"failed"`
	Timestamp time.Time  `json:"timestamp"`
}
