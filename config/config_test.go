package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:  "single service - poller",
			input: "poller",
			expected: map[ServiceMode]bool{
				ServiceModePoller: true,
			},
		},
		{
			name:  "both services",
			input: "worker,poller",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModePoller: true,
			},
		},
		{
			name:  "services with spaces",
			input: " worker , poller ",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModePoller: true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker,poller",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModePoller: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "worker,http",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, got services %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "worker,poller" {
		t.Errorf("expected default services worker,poller, got %q", cfg.Services)
	}
	if !cfg.IsWorkerEnabled() || !cfg.IsPollerEnabled() {
		t.Error("expected both services enabled by default")
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("expected default worker concurrency 4, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.MaxAttempts != 3 {
		t.Errorf("expected default worker max attempts 3, got %d", cfg.Worker.MaxAttempts)
	}
	if cfg.Worker.BackoffBase != 500*time.Millisecond {
		t.Errorf("expected default worker backoff base 500ms, got %v", cfg.Worker.BackoffBase)
	}
	if cfg.Poller.Interval != 15*time.Second {
		t.Errorf("expected default poller interval 15s, got %v", cfg.Poller.Interval)
	}
	if cfg.Poller.BatchSize != 50 {
		t.Errorf("expected default poller batch size 50, got %d", cfg.Poller.BatchSize)
	}
	if cfg.Webhook.Timeout != 10*time.Second {
		t.Errorf("expected default webhook timeout 10s, got %v", cfg.Webhook.Timeout)
	}
	if cfg.Webhook.MaxFailures != 10 {
		t.Errorf("expected default webhook max failures 10, got %d", cfg.Webhook.MaxFailures)
	}
	if cfg.Cache.DocTypeTTL != 5*time.Minute {
		t.Errorf("expected default doctype cache TTL 5m, got %v", cfg.Cache.DocTypeTTL)
	}
	if cfg.Extraction.Timeout != 30*time.Second {
		t.Errorf("expected default extraction timeout 30s, got %v", cfg.Extraction.Timeout)
	}
}

func TestAppConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVICES", "worker")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("POLLER_INTERVAL", "1m")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("EXTRACTION_BASE_URL", " https://extract.example.com ")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsWorkerEnabled() || cfg.IsPollerEnabled() {
		t.Error("expected only the worker service enabled")
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("expected worker concurrency 8, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Poller.Interval != time.Minute {
		t.Errorf("expected poller interval 1m, got %v", cfg.Poller.Interval)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("expected db host db.internal, got %q", cfg.Postgres.Host)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis cache disabled")
	}
	if cfg.Extraction.BaseURL != "https://extract.example.com" {
		t.Errorf("expected trimmed extraction base URL, got %q", cfg.Extraction.BaseURL)
	}
}

func TestSanitize_Guardrails(t *testing.T) {
	cfg := AppConfig{
		Worker:  WorkerConfig{Concurrency: 0, MaxAttempts: -1, BackoffBase: -time.Second},
		Poller:  PollerConfig{Interval: 0, BatchSize: 0},
		Webhook: WebhookConfig{Timeout: 0, MaxFailures: 0, MaxResponseBytes: -1},
	}
	cfg.Sanitize()

	if cfg.Worker.Concurrency != 1 {
		t.Errorf("expected worker concurrency clamped to 1, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.MaxAttempts != 1 {
		t.Errorf("expected worker max attempts clamped to 1, got %d", cfg.Worker.MaxAttempts)
	}
	if cfg.Worker.BackoffBase != 500*time.Millisecond {
		t.Errorf("expected worker backoff base defaulted, got %v", cfg.Worker.BackoffBase)
	}
	if cfg.Poller.Interval != 15*time.Second {
		t.Errorf("expected poller interval defaulted, got %v", cfg.Poller.Interval)
	}
	if cfg.Poller.BatchSize != 1 {
		t.Errorf("expected poller batch size clamped to 1, got %d", cfg.Poller.BatchSize)
	}
	if cfg.Webhook.MaxFailures != 1 {
		t.Errorf("expected webhook max failures clamped to 1, got %d", cfg.Webhook.MaxFailures)
	}
	if cfg.Webhook.MaxResponseBytes != 4096 {
		t.Errorf("expected webhook max response bytes defaulted, got %d", cfg.Webhook.MaxResponseBytes)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()
	if cfg.IsEnabled() {
		t.Error("expected metrics disabled when statsd address is blank")
	}

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "127.0.0.1:8125"}
	cfg.Sanitize()
	if !cfg.IsEnabled() {
		t.Error("expected metrics enabled")
	}
}
