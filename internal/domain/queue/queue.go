// Package queue implements the in-memory FIFO job queue and bounded worker
// pool that drives the verification pipeline. Jobs are retried with
// exponential backoff; a job that exhausts its attempts is handed to the
// permanent-failure hook, which is responsible for forcing the originating
// request into a failed state independent of any other persistence path.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/observability/metrics"
	"github.com/docuvet/docuvet/internal/observability/statsd"
)

// Handler processes a job and returns an error to indicate failure (retried per policy).
type Handler func(ctx context.Context, job *model.Job) error

// PermanentFailureFunc is invoked once when a job exhausts its attempts.
type PermanentFailureFunc func(ctx context.Context, job *model.Job, cause error)

// Options groups dependencies for Queue.
type Options struct {
	Handler            Handler              // Required: job execution handler
	Concurrency        int                  // Optional: worker pool width, defaults to 1
	MaxAttempts        int                  // Optional: attempts per job, defaults to 3
	Backoff            BackoffPolicy        // Optional: retry delay policy
	OnPermanentFailure PermanentFailureFunc // Optional: permanent failure hook
	Logger             *slog.Logger         // Optional: structured logger
	Metrics            statsd.Sink          // Optional: metric sink
}

// EnqueueRequest describes a job to enqueue.
type EnqueueRequest struct {
	Type    model.JobType
	Payload json.RawMessage

	// TrackingKey identifies the in-flight unit of work (the request id for
	// verify jobs) so the store poller can de-duplicate against jobs already
	// queued, running, or waiting out a backoff delay.
	TrackingKey string
}

// Queue is a single-process FIFO with bounded concurrency. Ordering among
// queued-but-not-yet-running jobs is FIFO; completion order is unordered.
type Queue struct {
	handler     Handler
	concurrency int
	maxAttempts int
	backoff     BackoffPolicy
	onPermFail  PermanentFailureFunc
	logger      *slog.Logger
	metrics     statsd.Sink

	mu      sync.Mutex
	fifo    []*model.Job
	tracked map[string]struct{}
	notify  chan struct{}
}

// New constructs a Queue.
func New(opts Options) (*Queue, error) {
	if opts.Handler == nil {
		return nil, errors.New("Handler is required")
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	backoff := opts.Backoff
	if backoff.Base <= 0 {
		backoff = NewBackoffPolicy(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		handler:     opts.Handler,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		onPermFail:  opts.OnPermanentFailure,
		logger:      logger.With("component", "queue"),
		metrics:     opts.Metrics,
		tracked:     make(map[string]struct{}),
		notify:      make(chan struct{}, 1),
	}, nil
}

// MustNew constructs a Queue and panics on error. Use at startup wiring only.
func MustNew(opts Options) *Queue {
	q, err := New(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when wiring is invalid during startup
		panic(fmt.Sprintf("failed to create queue: %v", err))
	}
	return q
}

// Enqueue appends a job to the FIFO and returns its id.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if !req.Type.Valid() {
		return "", fmt.Errorf("invalid job type %q", req.Type)
	}
	if len(req.Payload) == 0 {
		return "", errors.New("payload is required")
	}

	job := &model.Job{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Payload:     req.Payload,
		TrackingKey: req.TrackingKey,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  time.Now(),
	}

	q.mu.Lock()
	q.fifo = append(q.fifo, job)
	if job.TrackingKey != "" {
		q.tracked[job.TrackingKey] = struct{}{}
	}
	q.mu.Unlock()
	q.signal()

	q.logger.DebugContext(ctx, "job enqueued", "id", job.ID, "type", job.Type)
	return job.ID, nil
}

// Tracked reports whether a unit of work is already in flight: queued,
// executing, or waiting out a retry delay.
func (q *Queue) Tracked(key string) bool {
	if key == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tracked[key]
	return ok
}

// Len returns the number of queued-but-not-yet-running jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// Run drains the FIFO until the context is cancelled, executing at most
// Concurrency handlers at a time. The drain loop preserves FIFO start order;
// errgroup's limit is the counting gate.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.InfoContext(ctx, "starting queue workers",
		"concurrency", q.concurrency,
		"max_attempts", q.maxAttempts,
		"backoff_base", q.backoff.Base,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)

	for {
		job := q.next(ctx)
		if job == nil {
			break
		}
		g.Go(func() error {
			q.execute(ctx, job)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// next pops the head of the FIFO, blocking until a job is available or the
// context is cancelled (in which case it returns nil).
func (q *Queue) next(ctx context.Context) *model.Job {
	for {
		q.mu.Lock()
		if len(q.fifo) > 0 {
			job := q.fifo[0]
			q.fifo = q.fifo[1:]
			q.mu.Unlock()
			return job
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}

func (q *Queue) execute(ctx context.Context, job *model.Job) {
	start := time.Now()
	err := q.runHandler(ctx, job)
	if err == nil {
		q.untrack(job)
		metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: "completed",
			Result:     metrics.ResultSuccess,
			Duration:   time.Since(start),
		})
		return
	}

	job.Attempt++
	if job.Attempt < job.MaxAttempts {
		delay := q.backoff.Delay(job.Attempt)
		q.logger.WarnContext(ctx, "job failed, scheduling retry",
			"id", job.ID,
			"type", job.Type,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: "retried",
			Result:     metrics.ResultError,
			Duration:   time.Since(start),
			Err:        err,
		})
		q.requeueAfter(ctx, job, delay)
		return
	}

	q.untrack(job)
	q.logger.ErrorContext(ctx, "job permanently failed",
		"id", job.ID,
		"type", job.Type,
		"attempts", job.Attempt,
		"error", err,
	)
	metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: "failed",
		Result:     metrics.ResultError,
		Duration:   time.Since(start),
		Err:        err,
	})
	if q.onPermFail != nil {
		q.onPermFail(ctx, job, err)
	}
}

// runHandler isolates handler failure: a panicking handler fails its job
// without taking down the worker pool.
func (q *Queue) runHandler(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handler(ctx, job)
}

// requeueAfter re-inserts the job (same identity, new position) after the
// backoff delay. The job stays tracked while it waits.
func (q *Queue) requeueAfter(ctx context.Context, job *model.Job, delay time.Duration) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		q.mu.Lock()
		q.fifo = append(q.fifo, job)
		q.mu.Unlock()
		q.signal()
	}()
}

func (q *Queue) untrack(job *model.Job) {
	if job.TrackingKey == "" {
		return
	}
	q.mu.Lock()
	delete(q.tracked, job.TrackingKey)
	q.mu.Unlock()
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
