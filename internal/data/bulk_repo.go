package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/data/pgxutil"
	"github.com/docuvet/docuvet/internal/domain/model"
)

// BulkJobRepo provides database operations for bulk jobs.
type BulkJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.BulkJobRepository = (*BulkJobRepo)(nil)

// NewBulkJobRepo creates a BulkJobRepo with the real time provider.
func NewBulkJobRepo(db *sql.DB) *BulkJobRepo {
	return &BulkJobRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewBulkJobRepoWithTimeProvider creates a BulkJobRepo with a custom time provider (useful for tests).
func NewBulkJobRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *BulkJobRepo {
	return &BulkJobRepo{DB: db, timeProvider: tp}
}

const bulkJobColumns = `
	id, owner_id, total, completed, verified, rejected, failed, status, created_at, updated_at`

// Create records a new bulk job in processing state.
func (r *BulkJobRepo) Create(ctx context.Context, ownerID string, total int) (*model.BulkJob, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if total <= 0 {
		return nil, errors.New("total must be positive")
	}

	now := r.timeProvider.Now().UTC()
	var out model.BulkJob
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO bulk_jobs (owner_id, total, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING`+bulkJobColumns,
			ownerID, total, model.BulkStatusProcessing, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BulkJob])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create bulk job: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a bulk job by ID.
func (r *BulkJobRepo) GetByID(ctx context.Context, id string) (*model.BulkJob, error) {
	var out model.BulkJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT`+bulkJobColumns+` FROM bulk_jobs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BulkJob])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bulk job: %w", err)
	}
	return &out, nil
}

// CountRequestStatuses snapshots the statuses of all requests linked to the
// bulk job in a single aggregate query.
func (r *BulkJobRepo) CountRequestStatuses(ctx context.Context, bulkJobID string) (model.BulkCounts, error) {
	var counts model.BulkCounts
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE status = 'verified'),
				COUNT(*) FILTER (WHERE status = 'rejected'),
				COUNT(*) FILTER (WHERE status = 'failed'),
				COUNT(*) FILTER (WHERE status IN ('accepted', 'processing'))
			FROM verification_requests
			WHERE bulk_job_id = $1`,
			bulkJobID,
		).Scan(&counts.Total, &counts.Verified, &counts.Rejected, &counts.Failed, &counts.InProgress)
	})
	if err != nil {
		return model.BulkCounts{}, fmt.Errorf("failed to count bulk request statuses: %w", err)
	}
	return counts, nil
}

// UpdateProgress persists a recomputed snapshot and derived status.
func (r *BulkJobRepo) UpdateProgress(
	ctx context.Context,
	params core.UpdateBulkProgressParams,
) (*model.BulkJob, error) {
	completed := params.Counts.Verified + params.Counts.Rejected + params.Counts.Failed

	var out model.BulkJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			UPDATE bulk_jobs
			SET completed = $2, verified = $3, rejected = $4, failed = $5, status = $6, updated_at = $7
			WHERE id = $1
			RETURNING`+bulkJobColumns,
			params.BulkJobID,
			completed,
			params.Counts.Verified,
			params.Counts.Rejected,
			params.Counts.Failed,
			params.Status,
			r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BulkJob])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update bulk job progress: %w", err)
	}
	return &out, nil
}
