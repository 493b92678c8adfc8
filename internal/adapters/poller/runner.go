// Package poller provides the recovery loop that re-enqueues verification
// requests left in the accepted state, typically after a crash or an enqueue
// failure.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/domain/queue"
	obserrors "github.com/docuvet/docuvet/internal/observability/errors"
	"github.com/docuvet/docuvet/internal/observability/metrics"
	"github.com/docuvet/docuvet/internal/observability/statsd"
)

const (
	defaultInterval  = 15 * time.Second
	defaultBatchSize = 50
)

// jobTracker is the queue behavior the poller needs: enqueue plus in-flight
// de-duplication.
type jobTracker interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
	Tracked(key string) bool
}

// acceptedLister is the store behavior the poller needs.
type acceptedLister interface {
	ListAcceptedIDs(ctx context.Context, limit int) ([]string, error)
}

// RunnerOptions configures the poller runner.
type RunnerOptions struct {
	Requests  acceptedLister
	Queue     jobTracker
	Interval  time.Duration // defaults to 15s
	BatchSize int           // defaults to 50
	Logger    *slog.Logger  // optional
	Metrics   statsd.Sink   // optional
}

// Runner periodically sweeps the store for accepted requests that nothing is
// working on and enqueues them. Only accepted rows are recovered: a request
// stuck in processing belongs to a crashed run and is resolved operationally
// via reprocess.
type Runner struct {
	requests  acceptedLister
	queue     jobTracker
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewRunner constructs a poller runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Requests == nil {
		return nil, errors.New("poller: verification repository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("poller: queue is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		requests:  opts.Requests,
		queue:     opts.Queue,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.With("component", "poller"),
		metrics:   opts.Metrics,
	}, nil
}

// MustNewRunner constructs a poller runner and panics on error.
func MustNewRunner(opts RunnerOptions) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return r
}

// Run sweeps at the configured interval until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "poller starting", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "poller stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			enqueued, err := r.Sweep(ctx)
			r.emitSweepMetrics(enqueued, time.Since(start), err)
			if err != nil {
				// Keep sweeping; the store may recover.
				r.logger.ErrorContext(ctx, "poller sweep failed", "error", err)
			} else if enqueued > 0 {
				r.logger.InfoContext(ctx, "poller recovered requests", "enqueued", enqueued)
			}
		}
	}
}

// Sweep enqueues accepted requests that are not already tracked in-flight.
// It returns the number of requests handed to the queue.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	ids, err := r.requests.ListAcceptedIDs(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list accepted requests: %w", err)
	}

	enqueued := 0
	for _, id := range ids {
		if r.queue.Tracked(id) {
			continue
		}
		payload, err := json.Marshal(model.VerifyJobPayload{RequestID: id})
		if err != nil {
			continue
		}
		if _, err := r.queue.Enqueue(ctx, queue.EnqueueRequest{
			Type:        model.JobTypeVerify,
			Payload:     payload,
			TrackingKey: id,
		}); err != nil {
			r.logger.WarnContext(ctx, "poller enqueue failed", "request_id", id, "error", err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (r *Runner) emitSweepMetrics(enqueued int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if enqueued == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("poller.sweep", 1, tags)
	if enqueued > 0 {
		r.metrics.Count("poller.recovered", int64(enqueued), tags)
	}
	if elapsed > 0 {
		r.metrics.Timing("poller.sweep_duration", elapsed, metrics.CloneTags(tags))
	}
}
