package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/domain/model"
)

// bulkNotifier is the minimal dispatcher behavior the bulk service needs.
type bulkNotifier interface {
	TriggerBulk(ctx context.Context, job *model.BulkJob) error
}

// BulkServiceOptions groups dependencies for BulkService.
type BulkServiceOptions struct {
	Repo     core.BulkJobRepository
	Notifier bulkNotifier // optional
	Logger   *slog.Logger // optional
}

// BulkService maintains the derived status of bulk jobs. The status is never
// set directly; every observation recounts the linked requests and derives it
// from the snapshot, so repeated recomputation is safe.
type BulkService struct {
	repo     core.BulkJobRepository
	notifier bulkNotifier
	logger   *slog.Logger
}

// NewBulkService constructs a BulkService.
func NewBulkService(opts BulkServiceOptions) (*BulkService, error) {
	if opts.Repo == nil {
		return nil, errors.New("bulk service: repo is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BulkService{
		repo:     opts.Repo,
		notifier: opts.Notifier,
		logger:   logger.With("component", "bulk_service"),
	}, nil
}

// Create opens a new bulk job expecting the given number of linked requests.
func (s *BulkService) Create(ctx context.Context, ownerID string, total int) (*model.BulkJob, error) {
	if total <= 0 {
		return nil, errors.New("bulk service: total must be positive")
	}
	job, err := s.repo.Create(ctx, ownerID, total)
	if err != nil {
		return nil, fmt.Errorf("create bulk job: %w", err)
	}
	return job, nil
}

// GetByID returns a bulk job by id.
func (s *BulkService) GetByID(ctx context.Context, id string) (*model.BulkJob, error) {
	return s.repo.GetByID(ctx, id)
}

// Recompute snapshots the linked request statuses, derives the aggregate
// status, and persists both. When the derived status is terminal the owner's
// endpoints are notified; a recompute that observes an already-terminal
// aggregate notifies again, which consumers must tolerate.
func (s *BulkService) Recompute(ctx context.Context, bulkJobID string) (*model.BulkJob, error) {
	counts, err := s.repo.CountRequestStatuses(ctx, bulkJobID)
	if err != nil {
		return nil, fmt.Errorf("count bulk request statuses: %w", err)
	}

	status := model.DeriveBulkStatus(counts)
	job, err := s.repo.UpdateProgress(ctx, core.UpdateBulkProgressParams{
		BulkJobID: bulkJobID,
		Counts:    counts,
		Status:    status,
	})
	if err != nil {
		return nil, fmt.Errorf("update bulk progress: %w", err)
	}

	if status.Terminal() {
		s.notifyCompletion(ctx, job)
	}
	return job, nil
}

// notifyCompletion is best-effort: a notification failure never fails the
// recompute that produced the terminal status.
func (s *BulkService) notifyCompletion(ctx context.Context, job *model.BulkJob) {
	if s.notifier == nil || job == nil {
		return
	}
	if err := s.notifier.TriggerBulk(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to notify bulk completion",
			"bulk_job_id", job.ID, "status", job.Status, "error", err)
	}
}
