package testutil

import (
	"github.com/docuvet/docuvet/internal/domain/model"
)

// VerificationRequestBuilder provides a fluent interface for building
// CreateVerificationRequest objects for testing.
type VerificationRequestBuilder struct {
	req *model.CreateVerificationRequest
}

// NewVerificationRequest creates a VerificationRequestBuilder with sensible defaults.
func NewVerificationRequest() *VerificationRequestBuilder {
	return &VerificationRequestBuilder{
		req: &model.CreateVerificationRequest{
			OwnerID:      "owner-1",
			DocumentType: "pan",
			FileURL:      "https://files.example.com/doc.pdf",
		},
	}
}

// WithOwner sets the owner ID.
func (b *VerificationRequestBuilder) WithOwner(ownerID string) *VerificationRequestBuilder {
	b.req.OwnerID = ownerID
	return b
}

// WithDocumentType sets the document type code.
func (b *VerificationRequestBuilder) WithDocumentType(code string) *VerificationRequestBuilder {
	b.req.DocumentType = code
	return b
}

// WithFileURL sets the file URL.
func (b *VerificationRequestBuilder) WithFileURL(fileURL string) *VerificationRequestBuilder {
	b.req.FileURL = fileURL
	return b
}

// WithClientRef sets the client reference.
func (b *VerificationRequestBuilder) WithClientRef(ref string) *VerificationRequestBuilder {
	b.req.ClientRef = &ref
	return b
}

// WithMetadata adds a single metadata entry.
func (b *VerificationRequestBuilder) WithMetadata(key, value string) *VerificationRequestBuilder {
	if b.req.Metadata == nil {
		b.req.Metadata = map[string]string{}
	}
	b.req.Metadata[key] = value
	return b
}

// WithBulkJob links the request to a bulk job.
func (b *VerificationRequestBuilder) WithBulkJob(bulkJobID string) *VerificationRequestBuilder {
	b.req.BulkJobID = &bulkJobID
	return b
}

// Build returns the constructed CreateVerificationRequest.
func (b *VerificationRequestBuilder) Build() *model.CreateVerificationRequest {
	return b.req
}

// DocTypeConfigBuilder provides a fluent interface for building
// DocumentTypeConfig objects for testing.
type DocTypeConfigBuilder struct {
	cfg *model.DocumentTypeConfig
}

// NewDocTypeConfig creates a DocTypeConfigBuilder with sensible defaults.
func NewDocTypeConfig(code string) *DocTypeConfigBuilder {
	return &DocTypeConfigBuilder{
		cfg: &model.DocumentTypeConfig{
			Code:           code,
			AllowedFormats: []string{"pdf", "jpg", "png"},
		},
	}
}

// WithOwner scopes the config to an owner. Empty means global.
func (b *DocTypeConfigBuilder) WithOwner(ownerID string) *DocTypeConfigBuilder {
	b.cfg.OwnerID = ownerID
	return b
}

// WithRequiredFields sets the required extraction fields.
func (b *DocTypeConfigBuilder) WithRequiredFields(fields ...string) *DocTypeConfigBuilder {
	b.cfg.RequiredFields = fields
	return b
}

// WithValidationRule adds a field pattern rule.
func (b *DocTypeConfigBuilder) WithValidationRule(field, pattern string) *DocTypeConfigBuilder {
	if b.cfg.ValidationRules == nil {
		b.cfg.ValidationRules = map[string]string{}
	}
	b.cfg.ValidationRules[field] = pattern
	return b
}

// WithAllowedFormats sets the allowed file formats.
func (b *DocTypeConfigBuilder) WithAllowedFormats(formats ...string) *DocTypeConfigBuilder {
	b.cfg.AllowedFormats = formats
	return b
}

// Build returns the constructed DocumentTypeConfig.
func (b *DocTypeConfigBuilder) Build() *model.DocumentTypeConfig {
	return b.cfg
}

// ExtractionResultBuilder provides a fluent interface for building
// ExtractionResult objects for testing.
type ExtractionResultBuilder struct {
	res *model.ExtractionResult
}

// NewExtractionResult creates an ExtractionResultBuilder describing a clean,
// genuine document.
func NewExtractionResult() *ExtractionResultBuilder {
	return &ExtractionResultBuilder{
		res: &model.ExtractionResult{
			DocumentTypeMatch: true,
			Status:            "verified",
			Confidence:        92,
			RiskScore:         0.05,
			IsGenuine:         BoolPtr(true),
			ExtractedData:     map[string]string{},
		},
	}
}

// WithScores sets the confidence and risk score.
func (b *ExtractionResultBuilder) WithScores(confidence int, risk float64) *ExtractionResultBuilder {
	b.res.Confidence = confidence
	b.res.RiskScore = risk
	return b
}

// WithField sets one extracted field.
func (b *ExtractionResultBuilder) WithField(key, value string) *ExtractionResultBuilder {
	b.res.ExtractedData[key] = value
	return b
}

// WithDetectedType marks the document as a different detected type.
func (b *ExtractionResultBuilder) WithDetectedType(code string) *ExtractionResultBuilder {
	b.res.DocumentTypeMatch = false
	b.res.DetectedDocumentType = code
	return b
}

// WithFraudIndicators sets the fraud indicator list.
func (b *ExtractionResultBuilder) WithFraudIndicators(indicators ...string) *ExtractionResultBuilder {
	b.res.FraudIndicators = indicators
	return b
}

// Build returns the constructed ExtractionResult.
func (b *ExtractionResultBuilder) Build() *model.ExtractionResult {
	return b.res
}
