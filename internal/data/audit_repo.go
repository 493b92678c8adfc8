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

// AuditRepo provides the append-only audit log.
type AuditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.AuditRepository = (*AuditRepo)(nil)

// NewAuditRepo creates an AuditRepo with the real time provider.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewAuditRepoWithTimeProvider creates an AuditRepo with a custom time provider (useful for tests).
func NewAuditRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *AuditRepo {
	return &AuditRepo{DB: db, timeProvider: tp}
}

// Append writes one audit record and fills the generated ID and timestamp.
func (r *AuditRepo) Append(ctx context.Context, record *model.AuditRecord) error {
	if record == nil {
		return errors.New("audit record is required")
	}

	now := r.timeProvider.Now().UTC()
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO audit_log (owner_id, request_id, category, detail, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			record.OwnerID,
			record.RequestID,
			record.Category,
			record.Detail,
			now,
		).Scan(&record.ID, &record.CreatedAt)
	}); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ListByRequest returns audit records for one request, oldest first.
func (r *AuditRepo) ListByRequest(ctx context.Context, requestID string) ([]*model.AuditRecord, error) {
	var rowsOut []model.AuditRecord
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, owner_id, request_id, category, detail, created_at
			FROM audit_log
			WHERE request_id = $1
			ORDER BY created_at ASC`,
			requestID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.AuditRecord])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	res := make([]*model.AuditRecord, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}
