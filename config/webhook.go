package config

import "time"

// WebhookConfig contains webhook dispatcher configuration.
type WebhookConfig struct {
	// Timeout is the per-delivery HTTP timeout.
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`

	// MaxFailures is the rolling failure ceiling; subscriptions at or above it
	// are skipped until a surrounding system resets them.
	MaxFailures int `env:"WEBHOOK_MAX_FAILURES" envDefault:"10"`

	// MaxResponseBytes caps how much of an endpoint's response body is kept in
	// the delivery log.
	MaxResponseBytes int `env:"WEBHOOK_MAX_RESPONSE_BYTES" envDefault:"4096"`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	if w.Timeout <= 0 {
		w.Timeout = 10 * time.Second
	}
	if w.MaxFailures < 1 {
		w.MaxFailures = 1
	}
	if w.MaxResponseBytes < 1 {
		w.MaxResponseBytes = 4096
	}
}
