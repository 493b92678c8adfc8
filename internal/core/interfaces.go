// Package core provides the business-logic ports for the docuvet verification pipeline.
package core

import (
	"context"
	"time"

	"github.com/docuvet/docuvet/internal/domain/model"
)

// This file contains repository and collaborator interface definitions (ports
// in hexagonal architecture). Services depend on these interfaces, not on the
// concrete data layer or HTTP clients.

// FinalizeVerdictParams groups parameters for VerificationRepository.FinalizeVerdict.
type FinalizeVerdictParams struct {
	RequestID string
	Verdict   model.Verdict
}

// VerificationRepository defines durable-store operations for verification requests.
type VerificationRepository interface {
	Create(ctx context.Context, req *model.CreateVerificationRequest) (*model.VerificationRequest, error)
	GetByID(ctx context.Context, id string) (*model.VerificationRequest, error)

	// BeginProcessing transitions accepted -> processing. Returns false without
	// error when the request is not in accepted state (idempotency guard).
	BeginProcessing(ctx context.Context, id string) (bool, error)

	// Rearm returns a processing request to accepted so the queue can retry it.
	Rearm(ctx context.Context, id string) (bool, error)

	// FinalizeVerdict persists the terminal verdict and all derived fields.
	FinalizeVerdict(ctx context.Context, params FinalizeVerdictParams) error

	// ForceFail marks the request failed with a single explanatory issue,
	// independent of any other persistence path.
	ForceFail(ctx context.Context, id, issue string) error

	// Reprocess re-arms a terminal request: scoring fields cleared, status accepted.
	Reprocess(ctx context.Context, id string) (bool, error)

	// ListAcceptedIDs returns ids of requests still in accepted state, oldest first.
	ListAcceptedIDs(ctx context.Context, limit int) ([]string, error)
}

// DocTypeRepository defines lookups for document-type configurations.
type DocTypeRepository interface {
	// GetByCode resolves the config for a code scoped to the owner, falling
	// back to the global definition. Returns data.ErrDocTypeNotFound when
	// neither exists.
	GetByCode(ctx context.Context, code, ownerID string) (*model.DocumentTypeConfig, error)
	Upsert(ctx context.Context, cfg *model.DocumentTypeConfig) error
	List(ctx context.Context, ownerID string) ([]*model.DocumentTypeConfig, error)
}

// BulkJobRepository defines durable-store operations for bulk jobs.
type BulkJobRepository interface {
	Create(ctx context.Context, ownerID string, total int) (*model.BulkJob, error)
	GetByID(ctx context.Context, id string) (*model.BulkJob, error)

	// CountRequestStatuses snapshots the statuses of all linked requests.
	CountRequestStatuses(ctx context.Context, bulkJobID string) (model.BulkCounts, error)

	// UpdateProgress persists a recomputed snapshot and derived status.
	UpdateProgress(ctx context.Context, params UpdateBulkProgressParams) (*model.BulkJob, error)
}

// UpdateBulkProgressParams groups parameters for BulkJobRepository.UpdateProgress.
type UpdateBulkProgressParams struct {
	BulkJobID string
	Counts    model.BulkCounts
	Status    model.BulkStatus
}

// WebhookRepository defines durable-store operations for webhook subscriptions
// and their append-only delivery log.
type WebhookRepository interface {
	Create(ctx context.Context, req *model.CreateWebhookRequest) (*model.Webhook, error)
	GetByID(ctx context.Context, id string) (*model.Webhook, error)

	// ListDeliverable returns active subscriptions for the owner whose
	// failure count is below maxFailures. Event filtering happens in the
	// dispatcher since an empty event set subscribes to everything.
	ListDeliverable(ctx context.Context, ownerID string, maxFailures int) ([]*model.Webhook, error)

	RecordDelivery(ctx context.Context, delivery *model.WebhookDelivery) error
	ResetFailureCount(ctx context.Context, id string) error
	IncrementFailureCount(ctx context.Context, id string) (int, error)
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]*model.WebhookDelivery, error)
}

// AuditRepository defines the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, record *model.AuditRecord) error
}

// Extractor is the external AI extraction collaborator.
type Extractor interface {
	Extract(ctx context.Context, req *model.ExtractionRequest) (*model.ExtractionResult, error)
}

// ConfigCache is an optional cache for resolved document-type configs.
type ConfigCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}
