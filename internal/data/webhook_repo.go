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

// WebhookRepo provides database operations for webhook subscriptions and
// their append-only delivery log.
type WebhookRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.WebhookRepository = (*WebhookRepo)(nil)

// NewWebhookRepo creates a WebhookRepo with the real time provider.
func NewWebhookRepo(db *sql.DB) *WebhookRepo {
	return &WebhookRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewWebhookRepoWithTimeProvider creates a WebhookRepo with a custom time provider (useful for tests).
func NewWebhookRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *WebhookRepo {
	return &WebhookRepo{DB: db, timeProvider: tp}
}

const webhookColumns = `
	id, owner_id, url, secret, events, active, failure_count, payload_filter, created_at, updated_at`

// Create registers a new webhook subscription.
func (r *WebhookRepo) Create(ctx context.Context, req *model.CreateWebhookRequest) (*model.Webhook, error) {
	if req == nil {
		return nil, errors.New("create webhook request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	var out model.Webhook
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO webhooks (owner_id, url, secret, events, payload_filter, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING`+webhookColumns,
			req.OwnerID, req.URL, req.Secret, req.Events, req.PayloadFilter, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Webhook])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a webhook by ID.
func (r *WebhookRepo) GetByID(ctx context.Context, id string) (*model.Webhook, error) {
	var out model.Webhook
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT`+webhookColumns+` FROM webhooks WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Webhook])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return &out, nil
}

// ListDeliverable returns active subscriptions for the owner whose failure
// count is below maxFailures. Event filtering happens in the dispatcher.
func (r *WebhookRepo) ListDeliverable(
	ctx context.Context,
	ownerID string,
	maxFailures int,
) ([]*model.Webhook, error) {
	var rowsOut []model.Webhook
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT`+webhookColumns+`
			FROM webhooks
			WHERE owner_id = $1 AND active AND failure_count < $2
			ORDER BY created_at ASC`,
			ownerID, maxFailures)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Webhook])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list deliverable webhooks: %w", err)
	}

	res := make([]*model.Webhook, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// RecordDelivery appends one delivery attempt to the log and fills the
// generated ID and timestamp on the passed record.
func (r *WebhookRepo) RecordDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	if delivery == nil {
		return errors.New("webhook delivery is required")
	}

	now := r.timeProvider.Now().UTC()
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO webhook_deliveries (
				webhook_id, event, payload, success, status_code, response_body, body_truncated, error, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9
			) RETURNING id, created_at`,
			delivery.WebhookID,
			delivery.Event,
			delivery.Payload,
			delivery.Success,
			delivery.StatusCode,
			delivery.ResponseBody,
			delivery.BodyTruncated,
			delivery.Error,
			now,
		).Scan(&delivery.ID, &delivery.CreatedAt)
	}); err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

// ResetFailureCount zeroes the rolling failure counter after a successful delivery.
func (r *WebhookRepo) ResetFailureCount(ctx context.Context, id string) error {
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			UPDATE webhooks SET failure_count = 0, updated_at = $2 WHERE id = $1`,
			id, r.timeProvider.Now().UTC())
		return err
	}); err != nil {
		return fmt.Errorf("failed to reset webhook failure count: %w", err)
	}
	return nil
}

// IncrementFailureCount bumps the rolling failure counter and returns the new value.
func (r *WebhookRepo) IncrementFailureCount(ctx context.Context, id string) (int, error) {
	var count int
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			UPDATE webhooks SET failure_count = failure_count + 1, updated_at = $2
			WHERE id = $1
			RETURNING failure_count`,
			id, r.timeProvider.Now().UTC()).Scan(&count)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment webhook failure count: %w", err)
	}
	return count, nil
}

// ListDeliveries returns the most recent delivery attempts for a webhook.
func (r *WebhookRepo) ListDeliveries(
	ctx context.Context,
	webhookID string,
	limit int,
) ([]*model.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}

	var rowsOut []model.WebhookDelivery
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, webhook_id, event, payload, success, status_code, response_body, body_truncated, error, created_at
			FROM webhook_deliveries
			WHERE webhook_id = $1
			ORDER BY created_at DESC
			LIMIT $2`,
			webhookID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.WebhookDelivery])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}

	res := make([]*model.WebhookDelivery, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}
