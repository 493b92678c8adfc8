package service

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ValidationChecks holds the per-check results of deterministic validation.
type ValidationChecks struct {
	DatesValid          bool `json:"dates_valid"`
	IDFormatValid       bool `json:"id_format_valid"`
	LogicalChecksPassed bool `json:"logical_checks_passed"`
	DataConsistent      bool `json:"data_consistent"`
}

// ValidationResult is the output of the deterministic validator. Issues are
// advisory strings; the rule engine, not the validator, decides consequences.
type ValidationResult struct {
	Passed bool             `json:"passed"`
	Issues []string         `json:"issues,omitempty"`
	Checks ValidationChecks `json:"checks"`
}

// ValidatorOptions groups dependencies for Validator.
type ValidatorOptions struct {
	// Now overrides the clock, used by tests to keep validation deterministic.
	Now func() time.Time
}

// Validator runs deterministic checks over extracted document data,
// independent of the extraction collaborator's own judgment. Identical
// inputs (under a fixed clock) always yield identical results.
type Validator struct {
	now func() time.Time
}

// NewValidator constructs a Validator.
func NewValidator(opts ValidatorOptions) *Validator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate runs all four check families and ANDs them into the overall result.
func (v *Validator) Validate(documentType string, data, metadata map[string]string) ValidationResult {
	res := ValidationResult{
		Checks: ValidationChecks{
			DatesValid:          true,
			IDFormatValid:       true,
			LogicalChecksPassed: true,
			DataConsistent:      true,
		},
	}

	v.checkDates(documentType, data, &res)
	v.checkIDFormat(documentType, data, &res)
	v.checkLogicalConsistency(documentType, data, metadata, &res)
	v.checkDataConsistency(data, &res)

	res.Passed = res.Checks.DatesValid &&
		res.Checks.IDFormatValid &&
		res.Checks.LogicalChecksPassed &&
		res.Checks.DataConsistent
	return res
}

// dateFormats is the ordered list of accepted date layouts. The generic
// RFC3339 fallback comes last so unambiguous layouts win.
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"02 Jan 2006",
	"02-Jan-2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"2006",
	time.RFC3339,
}

const (
	minPlausibleYear = 1900
	maxPlausibleYear = 2100
	maxHumanAge      = 150
	issueGracePeriod = 30 * 24 * time.Hour
	examGracePeriod  = 365 * 24 * time.Hour
	maxExpiryYears   = 50
	minExamAgeYears  = 5
)

// minIssueAgeYears maps age-gated document types to the minimum holder age at issue.
var minIssueAgeYears = map[string]int{
	"driving_license": 16,
	"voter_id":        18,
}

func parseDate(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDateField(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "date") ||
		n == "dob" ||
		strings.Contains(n, "valid_from") ||
		strings.Contains(n, "valid_till") ||
		strings.Contains(n, "valid_until")
}

func dateFieldRole(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "birth") || n == "dob" || n == "date_of_birth":
		return "birth"
	case strings.Contains(n, "issue") || strings.Contains(n, "registration"):
		return "issue"
	case strings.Contains(n, "expiry") || strings.Contains(n, "expiration") ||
		strings.Contains(n, "valid_till") || strings.Contains(n, "valid_until"):
		return "expiry"
	case strings.Contains(n, "exam") || strings.Contains(n, "passing"):
		return "exam"
	default:
		return ""
	}
}

func (v *Validator) checkDates(documentType string, data map[string]string, res *ValidationResult) {
	now := v.now()
	parsed := map[string]time.Time{} // role -> date, for cross-field checks

	for _, field := range sortedKeys(data) {
		value := data[field]
		if !isDateField(field) {
			continue
		}

		t, ok := parseDate(value)
		if !ok {
			res.Checks.DatesValid = false
			res.Issues = append(res.Issues, fmt.Sprintf("field %s has unparseable date %q", field, value))
			continue
		}
		if t.Year() < minPlausibleYear || t.Year() > maxPlausibleYear {
			res.Checks.DatesValid = false
			res.Issues = append(res.Issues, fmt.Sprintf("field %s date %s is outside the plausible range", field, value))
			continue
		}

		// When several fields map to the same role, the first in sorted
		// field order supplies the date for cross-field checks.
		role := dateFieldRole(field)
		if role != "" {
			if _, seen := parsed[role]; !seen {
				parsed[role] = t
			}
		}

		switch role {
		case "birth":
			if t.After(now) {
				res.Checks.DatesValid = false
				res.Issues = append(res.Issues, fmt.Sprintf("birth date %s is in the future", value))
			} else if now.Sub(t) > time.Duration(maxHumanAge)*365*24*time.Hour {
				res.Checks.DatesValid = false
				res.Issues = append(res.Issues, fmt.Sprintf("birth date %s implies an implausible age", value))
			}
		case "issue":
			if t.After(now.Add(issueGracePeriod)) {
				res.Checks.DatesValid = false
				res.Issues = append(res.Issues, fmt.Sprintf("issue date %s is too far in the future", value))
			}
		case "expiry":
			if t.After(now.AddDate(maxExpiryYears, 0, 0)) {
				res.Checks.DatesValid = false
				res.Issues = append(res.Issues, fmt.Sprintf("expiry date %s is implausibly far out", value))
			}
		case "exam":
			if t.After(now.Add(examGracePeriod)) {
				res.Checks.DatesValid = false
				res.Issues = append(res.Issues, fmt.Sprintf("exam date %s is too far in the future", value))
			}
		}
	}

	v.crossValidateDates(documentType, parsed, res)
}

func (v *Validator) crossValidateDates(documentType string, parsed map[string]time.Time, res *ValidationResult) {
	birth, hasBirth := parsed["birth"]
	issue, hasIssue := parsed["issue"]
	expiry, hasExpiry := parsed["expiry"]
	exam, hasExam := parsed["exam"]

	fail := func(format string, args ...any) {
		res.Checks.DatesValid = false
		res.Issues = append(res.Issues, fmt.Sprintf(format, args...))
	}

	if hasBirth && hasIssue && !birth.Before(issue) {
		fail("birth date is not before issue date")
	}
	if hasIssue && hasExpiry && !issue.Before(expiry) {
		fail("issue date is not before expiry date")
	}
	if hasBirth && hasExpiry && !birth.Before(expiry) {
		fail("birth date is not before expiry date")
	}
	if hasBirth && hasExam {
		if !birth.Before(exam) {
			fail("birth date is not before exam date")
		} else if yearsBetween(birth, exam) < minExamAgeYears {
			fail("age at exam date is below %d years", minExamAgeYears)
		}
	}
	if hasBirth && hasIssue {
		if minAge, gated := minIssueAgeYears[strings.ToLower(documentType)]; gated {
			if yearsBetween(birth, issue) < minAge {
				fail("holder was under %d years old at issue date", minAge)
			}
		}
	}
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.YearDay() < from.YearDay() {
		years--
	}
	return years
}

// idFormatSpec describes the canonical identifier for an ID-class document type.
type idFormatSpec struct {
	fields  []string
	pattern *regexp.Regexp
	minLen  int
	maxLen  int
	label   string
}

var idFormatSpecs = map[string]idFormatSpec{
	"aadhaar": {
		fields:  []string{"aadhaar_number", "aadhar_number", "uid"},
		pattern: regexp.MustCompile(`^[2-9][0-9]{11}$`),
		label:   "12 digits not starting with 0 or 1",
	},
	"pan": {
		fields:  []string{"pan_number", "pan"},
		pattern: regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`),
		label:   "5 letters, 4 digits, 1 letter",
	},
	"passport": {
		fields:  []string{"passport_number"},
		pattern: regexp.MustCompile(`^[A-Z][0-9]{7}$`),
		label:   "1 letter followed by 7 digits",
	},
	"driving_license": {
		fields:  []string{"license_number", "dl_number"},
		pattern: regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[0-9]{4,13}$`),
		minLen:  8,
		maxLen:  17,
		label:   "state code, 2 digits, 4-13 digit serial",
	},
	"voter_id": {
		fields:  []string{"voter_id_number", "epic_number"},
		pattern: regexp.MustCompile(`^[A-Z]{3}[0-9]{7}$`),
		label:   "3 letters followed by 7 digits",
	},
}

func (v *Validator) checkIDFormat(documentType string, data map[string]string, res *ValidationResult) {
	spec, ok := idFormatSpecs[strings.ToLower(documentType)]
	if !ok {
		return
	}

	value, found := "", false
	for _, field := range spec.fields {
		if raw, exists := data[field]; exists {
			value = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
			found = true
			break
		}
	}

	if !found {
		res.Checks.IDFormatValid = false
		res.Issues = append(res.Issues, fmt.Sprintf("no identifier field found for document type %s", documentType))
		return
	}

	if spec.minLen > 0 && (len(value) < spec.minLen || len(value) > spec.maxLen) {
		res.Checks.IDFormatValid = false
		res.Issues = append(res.Issues, fmt.Sprintf("%s identifier has invalid length %d", documentType, len(value)))
		return
	}

	if !spec.pattern.MatchString(value) {
		res.Checks.IDFormatValid = false
		res.Issues = append(res.Issues, fmt.Sprintf("%s identifier does not match expected format (%s)", documentType, spec.label))
	}
}

func (v *Validator) checkLogicalConsistency(documentType string, data, metadata map[string]string, res *ValidationResult) {
	fail := func(format string, args ...any) {
		res.Checks.LogicalChecksPassed = false
		res.Issues = append(res.Issues, fmt.Sprintf(format, args...))
	}

	// Name containment: the full name must contain the first/last fragments.
	fullName := firstNonEmpty(data, "name", "full_name", "holder_name", "candidate_name")
	if fullName != "" {
		full := strings.ToLower(fullName)
		for _, part := range []string{"first_name", "last_name"} {
			if fragment := strings.ToLower(strings.TrimSpace(data[part])); fragment != "" {
				if !strings.Contains(full, fragment) {
					fail("full name %q does not contain %s %q", fullName, strings.ReplaceAll(part, "_", " "), data[part])
				}
			}
		}
	}

	// Caller-metadata cross-verification.
	for _, key := range sortedKeys(metadata) {
		expected := metadata[key]
		actual, exists := data[key]
		if !exists || strings.TrimSpace(expected) == "" {
			continue
		}
		if isNameField(key) {
			if !wordsOverlap(expected, actual) {
				fail("field %s does not match caller metadata", key)
			}
		} else if normalizeValue(expected) != normalizeValue(actual) {
			fail("field %s does not match caller metadata", key)
		}
	}

	// Per-document-type numeric sanity.
	for _, field := range sortedKeys(data) {
		value := data[field]
		n := strings.ToLower(field)
		switch {
		case strings.Contains(n, "percentage"):
			if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64); err != nil || f < 0 || f > 100 {
				fail("field %s has implausible percentage %q", field, value)
			}
		case strings.Contains(n, "cgpa") || strings.Contains(n, "gpa"):
			if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil || f < 0 || f > 10 {
				fail("field %s has implausible grade point %q", field, value)
			}
		}
	}

	if strings.ToLower(documentType) == "bank_statement" {
		v.checkBalanceReconciliation(data, fail)
	}
}

func (v *Validator) checkBalanceReconciliation(data map[string]string, fail func(string, ...any)) {
	opening, okO := parseAmount(data["opening_balance"])
	closing, okC := parseAmount(data["closing_balance"])
	credits, okCr := parseAmount(data["total_credits"])
	debits, okD := parseAmount(data["total_debits"])
	if !okO || !okC || !okCr || !okD {
		return
	}
	// One currency unit of tolerance absorbs rounding in the statement.
	if math.Abs(closing-(opening+credits-debits)) > 1.0 {
		fail("closing balance does not reconcile with opening balance, credits, and debits")
	}
}

func parseAmount(value string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var placeholderValues = map[string]struct{}{
	"test":        {},
	"testing":     {},
	"sample":      {},
	"dummy":       {},
	"placeholder": {},
	"n/a":         {},
	"na":          {},
	"null":        {},
	"none":        {},
	"xxx":         {},
	"lorem ipsum": {},
	"john doe":    {},
}

func (v *Validator) checkDataConsistency(data map[string]string, res *ValidationResult) {
	fail := func(format string, args ...any) {
		res.Checks.DataConsistent = false
		res.Issues = append(res.Issues, fmt.Sprintf(format, args...))
	}

	idValues := map[string]string{} // normalized value -> field that carried it

	for _, field := range sortedKeys(data) {
		value := data[field]
		norm := strings.ToLower(strings.TrimSpace(value))
		if norm == "" {
			continue
		}

		if _, bad := placeholderValues[norm]; bad {
			fail("field %s contains placeholder value %q", field, value)
			continue
		}
		if len(norm) >= 3 && isRepeatedChar(norm) {
			fail("field %s is a single repeated character %q", field, value)
			continue
		}

		if isIdentifierField(field) {
			if other, seen := idValues[norm]; seen && other != field {
				fail("fields %s and %s carry the same identifier value", other, field)
			} else {
				idValues[norm] = field
			}
		}
	}
}

func isRepeatedChar(s string) bool {
	first := rune(0)
	for i, r := range s {
		if i == 0 {
			first = r
			continue
		}
		if r != first {
			return false
		}
	}
	return true
}

func isIdentifierField(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "number") || strings.HasSuffix(n, "_id") || n == "uid"
}

func isNameField(name string) bool {
	return strings.Contains(strings.ToLower(name), "name")
}

func wordsOverlap(a, b string) bool {
	aw := strings.Fields(strings.ToLower(a))
	bw := strings.Fields(strings.ToLower(b))
	for _, w := range aw {
		for _, x := range bw {
			if w == x {
				return true
			}
		}
	}
	return false
}

func normalizeValue(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func firstNonEmpty(data map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(data[k]); v != "" {
			return v
		}
	}
	return ""
}

// sortedKeys pins a deterministic field walk order so identical inputs
// always produce an identical verdict, issues list included.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
