package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the verification job worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModePoller runs the accepted-request recovery poller.
	ServiceModePoller ServiceMode = "poller"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModePoller,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModePoller:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, poller)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains verification worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines draining the job queue.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// MaxAttempts is the number of attempts per job before the permanent-failure hook fires.
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS" envDefault:"3"`

	// BackoffBase is the exponential retry backoff base.
	BackoffBase time.Duration `env:"WORKER_BACKOFF_BASE" envDefault:"500ms"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.BackoffBase <= 0 {
		w.BackoffBase = 500 * time.Millisecond
	}
}

// PollerConfig contains recovery poller configuration.
type PollerConfig struct {
	// Interval is the sweep interval.
	Interval time.Duration `env:"POLLER_INTERVAL" envDefault:"15s"`

	// BatchSize is the maximum number of accepted requests recovered per sweep.
	BatchSize int `env:"POLLER_BATCH_SIZE" envDefault:"50"`
}

// Sanitize applies guardrails to poller configuration values.
func (p *PollerConfig) Sanitize() {
	if p.Interval <= 0 {
		p.Interval = 15 * time.Second
	}
	if p.BatchSize < 1 {
		p.BatchSize = 1
	}
}
