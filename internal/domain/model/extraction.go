package model

import "encoding/json"

// ImageQuality grades the captured document image as judged by the
// extraction collaborator.
type ImageQuality string

const (
	// ImageQualityGood indicates a clean capture.
	ImageQualityGood ImageQuality = "good"
	// ImageQualityAcceptable indicates a usable but imperfect capture.
	ImageQualityAcceptable ImageQuality = "acceptable"
	// ImageQualityPoor indicates a degraded capture.
	ImageQualityPoor ImageQuality = "poor"
	// ImageQualitySuspicious indicates capture artifacts consistent with manipulation.
	ImageQualitySuspicious ImageQuality = "suspicious"
)

// ExtractionRequest is the input contract for the extraction collaborator.
type ExtractionRequest struct {
	FileURL         string            `json:"file_url"`
	DocumentType    string            `json:"document_type"`
	RequiredFields  []string          `json:"required_fields,omitempty"`
	ValidationRules map[string]string `json:"validation_rules,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// AuthenticityChecks is the collaborator's structured authenticity judgment.
type AuthenticityChecks struct {
	TamperingDetected     bool         `json:"tampering_detected"`
	HasSecurityFeatures   bool         `json:"has_security_features"`
	FontConsistency       bool         `json:"font_consistency"`
	LayoutMatchesOfficial bool         `json:"layout_matches_official"`
	PhotoIntegrity        bool         `json:"photo_integrity"`
	ImageQuality          ImageQuality `json:"image_quality"`
}

// DataConsistency mirrors the deterministic validator's consistency output as
// reported by the collaborator.
type DataConsistency struct {
	DatesValid          bool `json:"dates_valid"`
	IDFormatValid       bool `json:"id_format_valid"`
	LogicalChecksPassed bool `json:"logical_checks_passed"`
}

// ExtractionResult is the collaborator's response. Its internal reasoning is
// opaque; only this contract matters to the pipeline.
type ExtractionResult struct {
	DocumentTypeMatch    bool                `json:"document_type_match"`
	DetectedDocumentType string              `json:"detected_document_type,omitempty"`
	Status               string              `json:"status"`
	Confidence           int                 `json:"confidence"`
	RiskScore            float64             `json:"risk_score"`
	ExtractedData        map[string]string   `json:"extracted_data,omitempty"`
	Issues               []string            `json:"issues,omitempty"`
	FraudIndicators      []string            `json:"fraud_indicators,omitempty"`
	MetadataMatch        map[string]bool     `json:"metadata_match,omitempty"`
	IsGenuine            *bool               `json:"is_genuine,omitempty"`
	AuthenticityChecks   *AuthenticityChecks `json:"authenticity_checks,omitempty"`
	DataConsistency      *DataConsistency    `json:"data_consistency,omitempty"`
	Remarks              string              `json:"remarks,omitempty"`

	// Raw holds the exact response bytes for persistence alongside the verdict.
	Raw json.RawMessage `json:"-"`
}
