package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvet/docuvet/internal/domain/model"
)

func TestNew(t *testing.T) {
	t.Run("requires handler", func(t *testing.T) {
		_, err := New(Options{})
		require.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		q, err := New(Options{Handler: func(context.Context, *model.Job) error { return nil }})
		require.NoError(t, err)
		assert.Equal(t, 1, q.concurrency)
		assert.Equal(t, 3, q.maxAttempts)
		assert.Equal(t, 500*time.Millisecond, q.backoff.Base)
	})
}

func TestEnqueue_Validation(t *testing.T) {
	q := MustNew(Options{Handler: func(context.Context, *model.Job) error { return nil }})

	_, err := q.Enqueue(context.Background(), EnqueueRequest{Type: "browser", Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)

	_, err = q.Enqueue(context.Background(), EnqueueRequest{Type: model.JobTypeVerify})
	assert.Error(t, err)

	id, err := q.Enqueue(context.Background(), EnqueueRequest{
		Type:    model.JobTypeVerify,
		Payload: json.RawMessage(`{"request_id":"r1"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, q.Len())
}

func TestRun_ExecutesInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string

	q := MustNew(Options{
		Concurrency: 1,
		Handler: func(_ context.Context, job *model.Job) error {
			var p model.VerifyJobPayload
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return err
			}
			mu.Lock()
			got = append(got, p.RequestID)
			mu.Unlock()
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, EnqueueRequest{
			Type:    model.JobTypeVerify,
			Payload: json.RawMessage(`{"request_id":"` + id + `"}`),
		})
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	const workers = 2
	var current, peak int64
	release := make(chan struct{})

	q := MustNew(Options{
		Concurrency: workers,
		Handler: func(context.Context, *model.Job) error {
			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt64(&current, -1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 6; i++ {
		_, err := q.Enqueue(ctx, EnqueueRequest{
			Type:    model.JobTypeVerify,
			Payload: json.RawMessage(`{"request_id":"x"}`),
		})
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&current) == workers
	}, 2*time.Second, 5*time.Millisecond)

	close(release)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&current) == 0 && q.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(workers))
}

func TestRun_RetriesUntilPermanentFailure(t *testing.T) {
	const maxAttempts = 3
	var attempts int64
	var permFailed int64
	var failedJob *model.Job
	var failedCause error
	var mu sync.Mutex

	q := MustNew(Options{
		MaxAttempts: maxAttempts,
		Backoff:     BackoffPolicy{Base: time.Millisecond},
		Handler: func(context.Context, *model.Job) error {
			atomic.AddInt64(&attempts, 1)
			return errors.New("extraction unavailable")
		},
		OnPermanentFailure: func(_ context.Context, job *model.Job, cause error) {
			atomic.AddInt64(&permFailed, 1)
			mu.Lock()
			failedJob = job
			failedCause = cause
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := q.Enqueue(ctx, EnqueueRequest{
		Type:        model.JobTypeVerify,
		Payload:     json.RawMessage(`{"request_id":"r1"}`),
		TrackingKey: "r1",
	})
	require.NoError(t, err)
	assert.True(t, q.Tracked("r1"))

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&permFailed) == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// Attempted exactly maxAttempts times, then handed to the permanent-failure hook.
	assert.Equal(t, int64(maxAttempts), atomic.LoadInt64(&attempts))
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, failedJob)
	assert.Equal(t, maxAttempts, failedJob.Attempt)
	assert.ErrorContains(t, failedCause, "extraction unavailable")
	assert.False(t, q.Tracked("r1"))
}

func TestRun_RecoversHandlerPanic(t *testing.T) {
	var permFailed int64

	q := MustNew(Options{
		MaxAttempts: 1,
		Handler: func(context.Context, *model.Job) error {
			panic("boom")
		},
		OnPermanentFailure: func(_ context.Context, _ *model.Job, cause error) {
			atomic.AddInt64(&permFailed, 1)
			assert.ErrorContains(t, cause, "handler panic")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := q.Enqueue(ctx, EnqueueRequest{
		Type:    model.JobTypeVerify,
		Payload: json.RawMessage(`{"request_id":"r1"}`),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&permFailed) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestTracked_DeduplicatesInFlightWork(t *testing.T) {
	block := make(chan struct{})
	q := MustNew(Options{
		Handler: func(context.Context, *model.Job) error {
			<-block
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := q.Enqueue(ctx, EnqueueRequest{
		Type:        model.JobTypeVerify,
		Payload:     json.RawMessage(`{"request_id":"r1"}`),
		TrackingKey: "r1",
	})
	require.NoError(t, err)
	assert.True(t, q.Tracked("r1"))
	assert.False(t, q.Tracked("r2"))
	assert.False(t, q.Tracked(""))

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	// Still tracked while executing.
	require.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, q.Tracked("r1"))

	close(block)
	require.Eventually(t, func() bool { return !q.Tracked("r1") }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := NewBackoffPolicy(100 * time.Millisecond)

	var prev time.Duration
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Delay(attempt)
		assert.Greater(t, d, prev, "delay must strictly increase per attempt")
		prev = d
	}

	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, 100*time.Millisecond, p.Delay(-1))
}
