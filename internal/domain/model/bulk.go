package model

import "time"

// BulkStatus represents the derived status of a bulk job.
type BulkStatus string

const (
	// BulkStatusProcessing indicates at least one linked request is not terminal.
	BulkStatusProcessing BulkStatus = "processing"
	// BulkStatusCompleted indicates every linked request is verified.
	BulkStatusCompleted BulkStatus = "completed"
	// BulkStatusPartial indicates a mix of successful and failed terminal outcomes.
	BulkStatusPartial BulkStatus = "partial"
	// BulkStatusFailed indicates every linked request failed.
	BulkStatusFailed BulkStatus = "failed"
)

// Terminal returns true if the bulk status is final with respect to its
// current membership. Recomputation after a terminal result is safe.
func (s BulkStatus) Terminal() bool {
	return s == BulkStatusCompleted || s == BulkStatusPartial || s == BulkStatusFailed
}

// BulkJob is an aggregate over a set of verification requests. Its status is
// derived from the linked requests, never set independently.
type BulkJob struct {
	ID        string     `json:"id"         db:"id"`
	OwnerID   string     `json:"owner_id"   db:"owner_id"`
	Total     int        `json:"total"      db:"total"`
	Completed int        `json:"completed"  db:"completed"`
	Verified  int        `json:"verified"   db:"verified"`
	Rejected  int        `json:"rejected"   db:"rejected"`
	Failed    int        `json:"failed"     db:"failed"`
	Status    BulkStatus `json:"status"     db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// BulkCounts is a snapshot of linked request statuses for one bulk job.
type BulkCounts struct {
	Total      int
	Verified   int
	Rejected   int
	Failed     int
	InProgress int
}

// DeriveBulkStatus computes the aggregate status from a status count snapshot.
func DeriveBulkStatus(c BulkCounts) BulkStatus {
	if c.Total == 0 || c.InProgress > 0 {
		return BulkStatusProcessing
	}
	switch {
	case c.Verified == c.Total:
		return BulkStatusCompleted
	case c.Failed == c.Total:
		return BulkStatusFailed
	default:
		return BulkStatusPartial
	}
}
