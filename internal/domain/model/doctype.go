package model

import (
	"errors"
	"strings"
	"time"
)

// DocumentTypeConfig describes the expectations for one document-type code.
// Configs are scoped per owner with a fallback to a global definition
// (OwnerID == ""). The pipeline reads configs but never mutates them.
type DocumentTypeConfig struct {
	Code            string            `json:"code"             db:"code"`
	OwnerID         string            `json:"owner_id"         db:"owner_id"`
	RequiredFields  []string          `json:"required_fields"  db:"required_fields"`
	ValidationRules map[string]string `json:"validation_rules" db:"validation_rules"`
	AllowedFormats  []string          `json:"allowed_formats"  db:"allowed_formats"`
	CreatedAt       time.Time         `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"       db:"updated_at"`
}

// Validate validates the DocumentTypeConfig fields.
func (c *DocumentTypeConfig) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return errors.New("document type code is required")
	}
	for field, pattern := range c.ValidationRules {
		if strings.TrimSpace(field) == "" {
			return errors.New("validation rule field name is required")
		}
		if strings.TrimSpace(pattern) == "" {
			return errors.New("validation rule pattern is required for field " + field)
		}
	}
	return nil
}
