package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/data/pgxutil"
	"github.com/docuvet/docuvet/internal/domain/model"
)

// VerificationRepo provides database operations for verification requests.
type VerificationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.VerificationRepository = (*VerificationRepo)(nil)

// NewVerificationRepo creates a VerificationRepo with the real time provider.
func NewVerificationRepo(db *sql.DB) *VerificationRepo {
	return &VerificationRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewVerificationRepoWithTimeProvider creates a VerificationRepo with a custom time provider (useful for tests).
func NewVerificationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *VerificationRepo {
	return &VerificationRepo{DB: db, timeProvider: tp}
}

const verificationColumns = `
	id, client_ref, owner_id, document_type, file_url, metadata, status,
	confidence, risk_score, extracted_data, issues, raw_response, bulk_job_id,
	created_at, updated_at`

// Create records a new request in accepted state.
func (r *VerificationRepo) Create(
	ctx context.Context,
	req *model.CreateVerificationRequest,
) (*model.VerificationRequest, error) {
	if req == nil {
		return nil, errors.New("create verification request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	var out model.VerificationRequest
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO verification_requests (
				client_ref, owner_id, document_type, file_url, metadata, bulk_job_id, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $7
			) RETURNING`+verificationColumns,
			req.ClientRef,
			req.OwnerID,
			req.DocumentType,
			req.FileURL,
			req.Metadata,
			req.BulkJobID,
			now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.VerificationRequest])
		return err
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrDuplicateClientRef
		}
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a request by ID.
func (r *VerificationRepo) GetByID(ctx context.Context, id string) (*model.VerificationRequest, error) {
	var out model.VerificationRequest
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT`+verificationColumns+` FROM verification_requests WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.VerificationRequest])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}
	return &out, nil
}

// BeginProcessing transitions accepted -> processing. Returns false without
// error when the request is in any other state, so concurrent runs of the
// same request collapse to a single pipeline execution.
func (r *VerificationRepo) BeginProcessing(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, model.StatusProcessing, model.StatusAccepted)
}

// Rearm returns a processing request to accepted so the queue can retry it.
func (r *VerificationRepo) Rearm(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, model.StatusAccepted, model.StatusProcessing)
}

func (r *VerificationRepo) transition(
	ctx context.Context,
	id string,
	to, from model.RequestStatus,
) (bool, error) {
	var claimed bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `
			UPDATE verification_requests
			SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4`,
			id, to, r.timeProvider.Now().UTC(), from)
		if err != nil {
			return err
		}
		claimed = ct.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to transition request to %s: %w", to, err)
	}
	return claimed, nil
}

// FinalizeVerdict persists the terminal verdict and all derived fields. The
// request must still be in processing state; anything else means a competing
// writer got there first.
func (r *VerificationRepo) FinalizeVerdict(ctx context.Context, params core.FinalizeVerdictParams) error {
	var updated bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `
			UPDATE verification_requests
			SET status = $2, confidence = $3, risk_score = $4, issues = $5,
			    extracted_data = $6, raw_response = $7, updated_at = $8
			WHERE id = $1 AND status = $9`,
			params.RequestID,
			params.Verdict.Status,
			params.Verdict.Confidence,
			params.Verdict.RiskScore,
			params.Verdict.Issues,
			params.Verdict.ExtractedData,
			params.Verdict.RawResponse,
			r.timeProvider.Now().UTC(),
			model.StatusProcessing,
		)
		if err != nil {
			return err
		}
		updated = ct.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to finalize verdict: %w", err)
	}
	if !updated {
		return fmt.Errorf("finalize verdict for %s: %w", params.RequestID, ErrInvalidStatusTransition)
	}
	return nil
}

// ForceFail marks the request failed with a single explanatory issue. It
// applies from any state: this is the last-resort path that guarantees no
// request is left dangling when the pipeline cannot complete.
func (r *VerificationRepo) ForceFail(ctx context.Context, id, issue string) error {
	var updated bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `
			UPDATE verification_requests
			SET status = $2, confidence = 0, risk_score = 0, issues = ARRAY[$3], updated_at = $4
			WHERE id = $1`,
			id, model.StatusFailed, issue, r.timeProvider.Now().UTC())
		if err != nil {
			return err
		}
		updated = ct.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to force-fail request: %w", err)
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

// Reprocess re-arms a terminal request: scoring fields cleared, status back
// to accepted. Returns false when the request is not terminal.
func (r *VerificationRepo) Reprocess(ctx context.Context, id string) (bool, error) {
	var rearmed bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `
			UPDATE verification_requests
			SET status = $2, confidence = 0, risk_score = 0, issues = NULL,
			    extracted_data = NULL, raw_response = NULL, updated_at = $3
			WHERE id = $1 AND status = ANY($4)`,
			id,
			model.StatusAccepted,
			r.timeProvider.Now().UTC(),
			[]string{string(model.StatusVerified), string(model.StatusRejected), string(model.StatusFailed)},
		)
		if err != nil {
			return err
		}
		rearmed = ct.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to reprocess request: %w", err)
	}
	return rearmed, nil
}

// ListAcceptedIDs returns ids of requests still in accepted state, oldest first.
func (r *VerificationRepo) ListAcceptedIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	var ids []string
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id FROM verification_requests
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2`,
			model.StatusAccepted, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list accepted requests: %w", err)
	}
	return ids, nil
}
