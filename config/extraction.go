package config

import (
	"strings"
	"time"
)

// ExtractionConfig contains configuration for the external extraction collaborator.
type ExtractionConfig struct {
	// BaseURL is the extraction service base URL. Required to run the worker.
	BaseURL string `env:"EXTRACTION_BASE_URL"`

	// APIKey authenticates requests to the extraction service.
	APIKey string `env:"EXTRACTION_API_KEY"`

	// Timeout is the per-call HTTP timeout.
	Timeout time.Duration `env:"EXTRACTION_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to extraction configuration values.
func (e *ExtractionConfig) Sanitize() {
	e.BaseURL = strings.TrimSpace(e.BaseURL)
	e.APIKey = strings.TrimSpace(e.APIKey)
	if e.Timeout <= 0 {
		e.Timeout = 30 * time.Second
	}
}
