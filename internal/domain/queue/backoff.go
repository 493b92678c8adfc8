package queue

import "time"

// BackoffPolicy computes the re-enqueue delay after a failed attempt.
type BackoffPolicy struct {
	// Base is the unit delay. The delay after attempt n is Base * 2^n, so
	// consecutive retry delays are strictly increasing.
	Base time.Duration
}

// NewBackoffPolicy creates a BackoffPolicy, defaulting Base to 500ms.
func NewBackoffPolicy(base time.Duration) BackoffPolicy {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return BackoffPolicy{Base: base}
}

// Delay returns the delay before the given attempt number is retried.
// Attempt counts are capped to keep the shift well-defined for misbehaving callers.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return p.Base * time.Duration(1<<uint(attempt))
}
