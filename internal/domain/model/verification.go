// Package model defines the core data types and structures used throughout the docuvet verification pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RequestStatus represents the lifecycle state of a verification request.
type RequestStatus string

const (
	// StatusAccepted indicates a request has been recorded and is waiting to be processed.
	StatusAccepted RequestStatus = "accepted"
	// StatusProcessing indicates a request is currently moving through the pipeline.
	StatusProcessing RequestStatus = "processing"
	// StatusVerified indicates the document was accepted as genuine and correctly classified.
	StatusVerified RequestStatus = "verified"
	// StatusRejected indicates the document was rejected by the scoring engine.
	StatusRejected RequestStatus = "rejected"
	// StatusFailed indicates the pipeline could not produce a verdict for the request.
	StatusFailed RequestStatus = "failed"
)

// Valid returns true if the RequestStatus is one of the known states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusAccepted, StatusProcessing, StatusVerified, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final. Terminal requests are only
// re-entered via an explicit reprocess, which resets them to accepted.
func (s RequestStatus) Terminal() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusFailed
}

// Webhook event names emitted by the pipeline.
const (
	EventDocumentVerified = "document.verified"
	EventDocumentRejected = "document.rejected"
	EventBulkCompleted    = "bulk.completed"
)

// VerificationRequest represents a submitted document reference and its verdict.
// Confidence and RiskScore are only populated once Status leaves accepted/processing.
type VerificationRequest struct {
	ID            string            `json:"id"                       db:"id"`
	ClientRef     *string           `json:"client_ref,omitempty"     db:"client_ref"`
	OwnerID       string            `json:"owner_id"                 db:"owner_id"`
	DocumentType  string            `json:"document_type"            db:"document_type"`
	FileURL       string            `json:"file_url"                 db:"file_url"`
	Metadata      map[string]string `json:"metadata,omitempty"       db:"metadata"`
	Status        RequestStatus     `json:"status"                   db:"status"`
	Confidence    int               `json:"confidence"               db:"confidence"`
	RiskScore     float64           `json:"risk_score"               db:"risk_score"`
	ExtractedData map[string]string `json:"extracted_data,omitempty" db:"extracted_data"`
	Issues        []string          `json:"issues,omitempty"         db:"issues"`
	RawResponse   json.RawMessage   `json:"raw_response,omitempty"   db:"raw_response"`
	BulkJobID     *string           `json:"bulk_job_id,omitempty"    db:"bulk_job_id"`
	CreatedAt     time.Time         `json:"created_at"               db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"               db:"updated_at"`
}

// CreateVerificationRequest represents a request to record a new document for verification.
type CreateVerificationRequest struct {
	ClientRef    *string           `json:"client_ref,omitempty"`
	OwnerID      string            `json:"owner_id"`
	DocumentType string            `json:"document_type"`
	FileURL      string            `json:"file_url"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	BulkJobID    *string           `json:"bulk_job_id,omitempty"`
}

// Validate validates the CreateVerificationRequest fields.
func (r *CreateVerificationRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if strings.TrimSpace(r.DocumentType) == "" {
		return errors.New("document type is required")
	}
	if strings.TrimSpace(r.FileURL) == "" {
		return errors.New("file url is required")
	}
	u, err := url.Parse(r.FileURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("file url %q is not an absolute URL", r.FileURL)
	}
	return nil
}

// Verdict holds the final outcome persisted for a request at the end of the pipeline.
type Verdict struct {
	Status        RequestStatus     `json:"status"`
	Confidence    int               `json:"confidence"`
	RiskScore     float64           `json:"risk_score"`
	Issues        []string          `json:"issues,omitempty"`
	ExtractedData map[string]string `json:"extracted_data,omitempty"`
	RawResponse   json.RawMessage   `json:"raw_response,omitempty"`
}

// AuditCategory classifies the outcome of a pipeline run for the audit log.
type AuditCategory string

const (
	// AuditNormal is a pipeline run with no override flags.
	AuditNormal AuditCategory = "normal"
	// AuditWrongDocument indicates a document-type mismatch rejection.
	AuditWrongDocument AuditCategory = "wrong_document"
	// AuditFraudSuspected indicates fraud indicators or a non-genuine judgment.
	AuditFraudSuspected AuditCategory = "fraud_suspected"
	// AuditTamperingSuspected indicates detected tampering.
	AuditTamperingSuspected AuditCategory = "tampering_suspected"
	// AuditValidationFailed indicates deterministic validation failed.
	AuditValidationFailed AuditCategory = "validation_failed"
	// AuditPipelineFailed indicates the pipeline aborted before producing a verdict.
	AuditPipelineFailed AuditCategory = "pipeline_failed"
)

// AuditRecord is an append-only record describing one pipeline outcome.
type AuditRecord struct {
	ID        string        `json:"id"         db:"id"`
	OwnerID   string        `json:"owner_id"   db:"owner_id"`
	RequestID string        `json:"request_id" db:"request_id"`
	Category  AuditCategory `json:"category"   db:"category"`
	Detail    string        `json:"detail"     db:"detail"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}
