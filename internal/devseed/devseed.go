// Package devseed seeds baseline data for local development and demos.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB       *sql.DB
	doctypes *service.DocTypeService
}

// NewServices constructs the services required for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	doctypeService := service.MustNewDocTypeService(service.DocTypeServiceOptions{
		Repo: data.NewDocTypeRepo(db),
	})

	return Services{
		DB:       db,
		doctypes: doctypeService,
	}
}

// Seed upserts the global document-type configurations. Re-running is safe:
// existing configs are replaced, owner-scoped overrides are untouched.
func (s Services) Seed(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	configs := defaultDocTypeConfigs()
	for _, cfg := range configs {
		if err := s.doctypes.Upsert(ctx, cfg); err != nil {
			return fmt.Errorf("seed doctype %q: %w", cfg.Code, err)
		}
		logger.InfoContext(ctx, "seeded document type", "code", cfg.Code)
	}

	logger.InfoContext(ctx, "development seed completed", "doctypes", len(configs))
	return nil
}

// defaultDocTypeConfigs returns the global baseline configs. Patterns mirror
// the validator's canonical identifier formats so the two layers agree.
func defaultDocTypeConfigs() []*model.DocumentTypeConfig {
	return []*model.DocumentTypeConfig{
		{
			Code:           "pan",
			RequiredFields: []string{"name", "pan_number", "date_of_birth"},
			ValidationRules: map[string]string{
				"pan_number": `^[A-Z]{5}[0-9]{4}[A-Z]$`,
			},
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			Code:           "aadhaar",
			RequiredFields: []string{"name", "aadhaar_number", "date_of_birth", "address"},
			ValidationRules: map[string]string{
				"aadhaar_number": `^[2-9][0-9]{11}$`,
			},
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			Code:           "passport",
			RequiredFields: []string{"name", "passport_number", "date_of_birth", "expiry_date"},
			ValidationRules: map[string]string{
				"passport_number": `^[A-Z][0-9]{7}$`,
			},
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			Code:           "driving_license",
			RequiredFields: []string{"name", "license_number", "date_of_birth", "expiry_date"},
			ValidationRules: map[string]string{
				"license_number": `^[A-Z]{2}[0-9]{2}[0-9]{4,13}$`,
			},
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			Code:           "voter_id",
			RequiredFields: []string{"name", "voter_id_number"},
			ValidationRules: map[string]string{
				"voter_id_number": `^[A-Z]{3}[0-9]{7}$`,
			},
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
		},
	}
}
