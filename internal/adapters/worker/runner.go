// Package worker provides the adapter that runs the verification job queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/domain/queue"
	"github.com/docuvet/docuvet/internal/observability/statsd"
)

// Processor is the pipeline behavior the worker dispatches to.
type Processor interface {
	Process(ctx context.Context, requestID string) error
	HandlePermanentFailure(ctx context.Context, job *model.Job, cause error)
}

// RunnerOptions configures the worker runner.
type RunnerOptions struct {
	Processor   Processor
	Concurrency int           // worker goroutines; defaults to 1
	MaxAttempts int           // attempts per job; defaults to 3
	BackoffBase time.Duration // exponential backoff base; defaults to 500ms
	Logger      *slog.Logger  // optional
	Metrics     statsd.Sink   // optional
}

// Runner owns the in-memory job queue and dispatches jobs to the pipeline.
// The job type set is closed: every type is handled here or rejected.
type Runner struct {
	queue  *queue.Queue
	logger *slog.Logger
}

// NewRunner constructs a worker runner and its queue.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Processor == nil {
		return nil, errors.New("worker: processor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker")

	q, err := queue.New(queue.Options{
		Handler:            dispatch(opts.Processor),
		Concurrency:        opts.Concurrency,
		MaxAttempts:        opts.MaxAttempts,
		Backoff:            queue.NewBackoffPolicy(opts.BackoffBase),
		OnPermanentFailure: opts.Processor.HandlePermanentFailure,
		Logger:             logger,
		Metrics:            opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("worker: build queue: %w", err)
	}

	return &Runner{queue: q, logger: logger}, nil
}

// MustNewRunner constructs a worker runner and panics on error.
func MustNewRunner(opts RunnerOptions) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return r
}

// Queue exposes the underlying queue for submission and poller wiring.
func (r *Runner) Queue() *queue.Queue {
	return r.queue
}

// Run drains the queue until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "worker starting")
	err := r.queue.Run(ctx)
	r.logger.InfoContext(ctx, "worker stopped")
	return err
}

// dispatch routes a job to its handler with an exhaustive switch over the
// closed job type set.
func dispatch(p Processor) queue.Handler {
	return func(ctx context.Context, job *model.Job) error {
		switch job.Type {
		case model.JobTypeVerify:
			var payload model.VerifyJobPayload
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("decode verify payload: %w", err)
			}
			return p.Process(ctx, payload.RequestID)
		default:
			return fmt.Errorf("unsupported job type %q", job.Type)
		}
	}
}
