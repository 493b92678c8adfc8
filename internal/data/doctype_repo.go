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

// DocTypeRepo provides database operations for document-type configurations.
// Configs are keyed by (code, owner_id); the empty owner id holds the global
// definition that owner-scoped rows shadow.
type DocTypeRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.DocTypeRepository = (*DocTypeRepo)(nil)

// NewDocTypeRepo creates a DocTypeRepo with the real time provider.
func NewDocTypeRepo(db *sql.DB) *DocTypeRepo {
	return &DocTypeRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewDocTypeRepoWithTimeProvider creates a DocTypeRepo with a custom time provider (useful for tests).
func NewDocTypeRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DocTypeRepo {
	return &DocTypeRepo{DB: db, timeProvider: tp}
}

const docTypeColumns = `
	code, owner_id, required_fields, validation_rules, allowed_formats, created_at, updated_at`

// GetByCode resolves the config for a code scoped to the owner, falling back
// to the global definition when no owner-scoped row exists.
func (r *DocTypeRepo) GetByCode(ctx context.Context, code, ownerID string) (*model.DocumentTypeConfig, error) {
	var out model.DocumentTypeConfig
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT`+docTypeColumns+`
			FROM document_type_configs
			WHERE code = $1 AND owner_id IN ($2, '')
			ORDER BY (owner_id = $2) DESC
			LIMIT 1`,
			code, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.DocumentTypeConfig])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocTypeNotFound
		}
		return nil, fmt.Errorf("failed to get document type config: %w", err)
	}
	return &out, nil
}

// Upsert inserts or replaces the config for (code, owner_id).
func (r *DocTypeRepo) Upsert(ctx context.Context, cfg *model.DocumentTypeConfig) error {
	if cfg == nil {
		return errors.New("document type config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := r.timeProvider.Now().UTC()
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO document_type_configs (
				code, owner_id, required_fields, validation_rules, allowed_formats, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $6
			)
			ON CONFLICT (code, owner_id) DO UPDATE SET
				required_fields = EXCLUDED.required_fields,
				validation_rules = EXCLUDED.validation_rules,
				allowed_formats = EXCLUDED.allowed_formats,
				updated_at = EXCLUDED.updated_at`,
			cfg.Code,
			cfg.OwnerID,
			cfg.RequiredFields,
			cfg.ValidationRules,
			cfg.AllowedFormats,
			now,
		)
		return err
	}); err != nil {
		return fmt.Errorf("failed to upsert document type config: %w", err)
	}
	return nil
}

// List returns configs visible to an owner: its own rows plus global ones an
// owner-scoped row does not shadow.
func (r *DocTypeRepo) List(ctx context.Context, ownerID string) ([]*model.DocumentTypeConfig, error) {
	var rowsOut []model.DocumentTypeConfig
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT DISTINCT ON (code)`+docTypeColumns+`
			FROM document_type_configs
			WHERE owner_id IN ($1, '')
			ORDER BY code, (owner_id = $1) DESC`,
			ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.DocumentTypeConfig])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list document type configs: %w", err)
	}

	res := make([]*model.DocumentTypeConfig, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}
