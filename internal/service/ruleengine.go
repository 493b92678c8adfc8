package service

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/docuvet/docuvet/internal/domain/model"
)

// Confidence/risk adjustments applied by the rule engine. Confidence is
// 0-100, risk is 0.0-1.0; both are clamped after all adjustments.
const (
	missingFieldConfidence     = -5
	missingFieldRisk           = 0.05
	patternFailConfidence      = -10
	patternFailRisk            = 0.10
	metadataMismatchConfidence = -15
	metadataMismatchRisk       = 0.15
	fraudIndicatorConfidence   = -10
	fraudIndicatorRisk         = 0.20
	notGenuineConfidence       = -40
	notGenuineRisk             = 0.50
	tamperingConfidence        = -30
	tamperingRisk              = 0.40
	securityFeaturesConfidence = -15
	securityFeaturesRisk       = 0.15
	fontConfidence             = -20
	fontRisk                   = 0.20
	layoutConfidence           = -15
	layoutRisk                 = 0.15
	photoConfidence            = -20
	photoRisk                  = 0.20
	poorImageConfidence        = -15
	poorImageRisk              = 0.15
	suspiciousImageConfidence  = -20
	suspiciousImageRisk        = 0.20
	validatorCheckConfidence   = -10
	validatorCheckRisk         = 0.10

	rejectConfidenceFloor = 50
	rejectRiskCeiling     = 0.7
	verifyConfidenceFloor = 80
	verifyRiskCeiling     = 0.2
)

// ScoreInput groups the inputs to the rule engine.
type ScoreInput struct {
	DocumentType string
	OwnerID      string
	Config       *model.DocumentTypeConfig // nil when no config exists for the type
	Extraction   *model.ExtractionResult
	Validation   ValidationResult
}

// ScoreVerdict is the rule engine's final judgment over a document.
type ScoreVerdict struct {
	Status        model.RequestStatus
	Confidence    int
	RiskScore     float64
	Issues        []string
	WrongDocument bool
	DetectedType  string
	Validation    ValidationResult
}

// RuleEngineOptions groups dependencies for RuleEngine.
type RuleEngineOptions struct {
	Logger *slog.Logger // Optional: structured logger
}

// RuleEngine combines collaborator output, validator output, and per-type
// configuration into a final status/confidence/risk triple. Score is a
// deterministic arithmetic function: identical inputs always yield identical
// outputs.
type RuleEngine struct {
	logger *slog.Logger
}

// NewRuleEngine constructs a RuleEngine.
func NewRuleEngine(opts RuleEngineOptions) *RuleEngine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{logger: logger.With("component", "rule_engine")}
}

// Score evaluates one extraction outcome against the configured rules.
func (e *RuleEngine) Score(in ScoreInput) ScoreVerdict {
	ext := in.Extraction

	// The collaborator's own type judgment short-circuits everything.
	if !ext.DocumentTypeMatch {
		return wrongDocumentVerdict(in, ext.DetectedDocumentType)
	}

	// The collaborator's type judgment is not fully trusted: a keyword
	// cross-check catches easily confused document-type pairs.
	if detected, ok := crossCheckKeywords(in.DocumentType, ext.ExtractedData); ok {
		return wrongDocumentVerdict(in, detected)
	}

	verdict := ScoreVerdict{
		Confidence: ext.Confidence,
		RiskScore:  ext.RiskScore,
		Issues:     append([]string(nil), ext.Issues...),
		Validation: in.Validation,
	}
	forceReject := false

	if in.Config == nil {
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("unknown document type %q", in.DocumentType))
	} else {
		e.applyConfigRules(in.Config, ext.ExtractedData, &verdict)
	}

	for _, field := range sortedKeys(ext.MetadataMatch) {
		if !ext.MetadataMatch[field] {
			verdict.Confidence += metadataMismatchConfidence
			verdict.RiskScore += metadataMismatchRisk
			verdict.Issues = append(verdict.Issues, fmt.Sprintf("metadata mismatch on field %s", field))
		}
	}

	if n := len(ext.FraudIndicators); n > 0 {
		verdict.Confidence += fraudIndicatorConfidence * n
		verdict.RiskScore += fraudIndicatorRisk * float64(n)
		verdict.Issues = append(verdict.Issues, ext.FraudIndicators...)
	}

	if ext.IsGenuine != nil && !*ext.IsGenuine {
		verdict.Confidence += notGenuineConfidence
		verdict.RiskScore += notGenuineRisk
		verdict.Issues = append(verdict.Issues, "document judged not genuine")
		forceReject = true
	}

	if ac := ext.AuthenticityChecks; ac != nil {
		if ac.TamperingDetected {
			verdict.Confidence += tamperingConfidence
			verdict.RiskScore += tamperingRisk
			verdict.Issues = append(verdict.Issues, "tampering detected")
			forceReject = true
		}
		if !ac.HasSecurityFeatures {
			verdict.Confidence += securityFeaturesConfidence
			verdict.RiskScore += securityFeaturesRisk
			verdict.Issues = append(verdict.Issues, "expected security features are missing")
		}
		if !ac.FontConsistency {
			verdict.Confidence += fontConfidence
			verdict.RiskScore += fontRisk
			verdict.Issues = append(verdict.Issues, "font inconsistency detected")
		}
		if !ac.LayoutMatchesOfficial {
			verdict.Confidence += layoutConfidence
			verdict.RiskScore += layoutRisk
			verdict.Issues = append(verdict.Issues, "layout does not match the official format")
		}
		if !ac.PhotoIntegrity {
			verdict.Confidence += photoConfidence
			verdict.RiskScore += photoRisk
			verdict.Issues = append(verdict.Issues, "photo integrity check failed")
		}
		switch ac.ImageQuality {
		case model.ImageQualityPoor:
			verdict.Confidence += poorImageConfidence
			verdict.RiskScore += poorImageRisk
			verdict.Issues = append(verdict.Issues, "poor image quality")
		case model.ImageQualitySuspicious:
			verdict.Confidence += suspiciousImageConfidence
			verdict.RiskScore += suspiciousImageRisk
			verdict.Issues = append(verdict.Issues, "suspicious image quality")
		case model.ImageQualityGood, model.ImageQualityAcceptable:
		}
	}

	e.applyValidation(in.Validation, &verdict)

	verdict.Confidence = clampConfidence(verdict.Confidence)
	verdict.RiskScore = clampRisk(verdict.RiskScore)
	verdict.Status = resolveStatus(forceReject, verdict.Confidence, verdict.RiskScore, ext.Status)
	return verdict
}

func (e *RuleEngine) applyConfigRules(cfg *model.DocumentTypeConfig, data map[string]string, verdict *ScoreVerdict) {
	for _, field := range cfg.RequiredFields {
		if strings.TrimSpace(data[field]) == "" {
			verdict.Confidence += missingFieldConfidence
			verdict.RiskScore += missingFieldRisk
			verdict.Issues = append(verdict.Issues, fmt.Sprintf("required field %s is missing", field))
		}
	}

	for _, field := range sortedKeys(cfg.ValidationRules) {
		pattern := cfg.ValidationRules[field]
		value, present := data[field]
		if !present {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			e.logger.Warn("skipping invalid validation rule pattern",
				"document_type", cfg.Code, "field", field, "error", err)
			continue
		}
		if !re.MatchString(value) {
			verdict.Confidence += patternFailConfidence
			verdict.RiskScore += patternFailRisk
			verdict.Issues = append(verdict.Issues, fmt.Sprintf("field %s fails its configured pattern", field))
		}
	}
}

func (e *RuleEngine) applyValidation(val ValidationResult, verdict *ScoreVerdict) {
	if !val.Checks.DatesValid {
		verdict.Confidence += validatorCheckConfidence
		verdict.RiskScore += validatorCheckRisk
	}
	if !val.Checks.IDFormatValid {
		verdict.Confidence += validatorCheckConfidence
		verdict.RiskScore += validatorCheckRisk
	}
	if !val.Checks.LogicalChecksPassed {
		verdict.Confidence += validatorCheckConfidence
		verdict.RiskScore += validatorCheckRisk
	}
	verdict.Issues = append(verdict.Issues, val.Issues...)
}

func wrongDocumentVerdict(in ScoreInput, detected string) ScoreVerdict {
	if detected == "" {
		detected = "unknown"
	}
	return ScoreVerdict{
		Status:        model.StatusRejected,
		Confidence:    0,
		RiskScore:     1.0,
		WrongDocument: true,
		DetectedType:  detected,
		Validation:    in.Validation,
		Issues: []string{
			fmt.Sprintf("wrong document: expected %s, detected %s", in.DocumentType, detected),
		},
	}
}

func resolveStatus(forceReject bool, confidence int, risk float64, suggested string) model.RequestStatus {
	if forceReject || confidence < rejectConfidenceFloor || risk > rejectRiskCeiling {
		return model.StatusRejected
	}
	if confidence >= verifyConfidenceFloor && risk < verifyRiskCeiling {
		return model.StatusVerified
	}
	// Soft middle band: neither force-rejected nor clearly verified, so the
	// collaborator's suggested status stands.
	if model.RequestStatus(suggested) == model.StatusVerified {
		return model.StatusVerified
	}
	return model.StatusRejected
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func clampRisk(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// keywordCheck lists phrases that betray a confusable document type. A match
// requires at least one indicator and none of the negators.
type keywordCheck struct {
	detectedAs string
	indicators []string
	negators   []string
}

// confusableTypes maps an expected document type to the keyword checks that
// expose a lookalike submitted in its place.
var confusableTypes = map[string][]keywordCheck{
	"marksheet_10": {
		{
			detectedAs: "marksheet_12",
			indicators: []string{"higher secondary", "senior secondary", "intermediate", "class xii", "class 12", "12th"},
		},
	},
	"marksheet_12": {
		{
			detectedAs: "marksheet_10",
			indicators: []string{"secondary school examination", "matriculation", "class x", "class 10", "10th"},
			negators:   []string{"higher secondary", "senior secondary"},
		},
	},
}

// crossCheckKeywords scans extracted text and class-designation fields for
// evidence that the document belongs to a confusable sibling type.
func crossCheckKeywords(documentType string, data map[string]string) (string, bool) {
	checks, ok := confusableTypes[strings.ToLower(documentType)]
	if !ok || len(data) == 0 {
		return "", false
	}

	// Sorted field order keeps phrase matches across value boundaries stable.
	var b strings.Builder
	for _, field := range sortedKeys(data) {
		if isClassifierExcluded(strings.ToLower(field)) {
			continue
		}
		b.WriteString(strings.ToLower(data[field]))
		b.WriteString(" ")
	}
	text := b.String()

	for _, check := range checks {
		if containsAny(text, check.negators) {
			continue
		}
		if containsAny(text, check.indicators) {
			return check.detectedAs, true
		}
	}
	return "", false
}

// isClassifierExcluded filters fields whose values are raw identifiers and
// would only add noise to the keyword scan.
func isClassifierExcluded(name string) bool {
	return strings.Contains(name, "number") || strings.HasSuffix(name, "_id")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
