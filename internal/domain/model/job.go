package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of job carried by the in-memory queue.
// The set is closed: the worker dispatches with an exhaustive switch so new
// job types are a compile-time decision.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

const (
	// JobTypeVerify runs the verification pipeline for one request.
	JobTypeVerify JobType = "verify"
)

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeVerify
}

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Job is an entry in the in-memory queue. Jobs are destroyed on terminal
// success or permanent failure and re-enqueued (same identity, new position)
// on transient failure.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	TrackingKey string          `json:"tracking_key,omitempty"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// VerifyJobPayload is the payload for JobTypeVerify jobs.
type VerifyJobPayload struct {
	RequestID string `json:"request_id"`
}

// Validate validates the VerifyJobPayload fields.
func (p *VerifyJobPayload) Validate() error {
	if p.RequestID == "" {
		return errors.New("request id is required")
	}
	return nil
}
