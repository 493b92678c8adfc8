package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock keeps validation deterministic across test runs.
var fixedClock = func() time.Time {
	return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
}

func newTestValidator() *Validator {
	return NewValidator(ValidatorOptions{Now: fixedClock})
}

func TestValidate_IsPure(t *testing.T) {
	v := newTestValidator()
	data := map[string]string{
		"pan_number":    "1234ABCDEF",
		"date_of_birth": "not-a-date",
		"name":          "test",
	}
	meta := map[string]string{"name": "Asha Verma"}

	first := v.Validate("pan", data, meta)
	second := v.Validate("pan", data, meta)

	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, first.Issues, second.Issues)
	assert.Equal(t, first.Checks, second.Checks)
}

func TestValidate_DuplicateRoleDatesResolveDeterministically(t *testing.T) {
	v := newTestValidator()
	// issue_date and registration_date both classify as issue dates; the
	// sorted-first field (issue_date) must win on every run.
	data := map[string]string{
		"date_of_birth":     "2000-01-01",
		"issue_date":        "2020-01-01",
		"registration_date": "1990-05-05",
	}

	first := v.Validate("marksheet_10", data, nil)
	require.True(t, first.Passed)
	require.Empty(t, first.Issues)

	for i := 0; i < 200; i++ {
		require.Equal(t, first, v.Validate("marksheet_10", data, nil), "run %d diverged", i)
	}
}

func TestValidate_IssueOrderIsStable(t *testing.T) {
	v := newTestValidator()
	data := map[string]string{
		"issue_date":  "someday",
		"exam_date":   "whenever",
		"expiry_date": "later",
	}

	want := []string{
		`field exam_date has unparseable date "whenever"`,
		`field expiry_date has unparseable date "later"`,
		`field issue_date has unparseable date "someday"`,
	}
	for i := 0; i < 50; i++ {
		require.Equal(t, want, v.Validate("marksheet_10", data, nil).Issues)
	}
}

func TestValidate_Dates(t *testing.T) {
	v := newTestValidator()

	t.Run("accepts common layouts", func(t *testing.T) {
		for _, value := range []string{"1990-04-21", "21/04/1990", "21-Apr-1990", "Apr 21, 1990", "1990"} {
			res := v.Validate("passport", map[string]string{
				"passport_number": "M1234567",
				"date_of_birth":   value,
			}, nil)
			assert.True(t, res.Checks.DatesValid, "layout %q should parse", value)
		}
	})

	t.Run("rejects unparseable date-named field", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{"issue_date": "someday"}, nil)
		assert.False(t, res.Checks.DatesValid)
		assert.False(t, res.Passed)
	})

	t.Run("rejects dates outside plausible window", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{"issue_date": "1850-01-01"}, nil)
		assert.False(t, res.Checks.DatesValid)

		res = v.Validate("passport", map[string]string{"expiry_date": "2150-01-01"}, nil)
		assert.False(t, res.Checks.DatesValid)
	})

	t.Run("rejects future birth date", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{"date_of_birth": "2030-01-01"}, nil)
		assert.False(t, res.Checks.DatesValid)
	})

	t.Run("rejects implausible age", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{"date_of_birth": "1860-01-01"}, nil)
		assert.False(t, res.Checks.DatesValid)
	})

	t.Run("allows issue date within grace period", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{
			"passport_number": "M1234567",
			"issue_date":      "2025-07-01",
		}, nil)
		assert.True(t, res.Checks.DatesValid)
	})

	t.Run("rejects issue date beyond grace period", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{"issue_date": "2025-09-01"}, nil)
		assert.False(t, res.Checks.DatesValid)
	})

	t.Run("rejects expiry more than fifty years out", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{"expiry_date": "2080-01-01"}, nil)
		assert.False(t, res.Checks.DatesValid)
	})

	t.Run("cross-validates birth issue expiry ordering", func(t *testing.T) {
		res := v.Validate("passport", map[string]string{
			"passport_number": "M1234567",
			"date_of_birth":   "1990-04-21",
			"issue_date":      "1985-01-01",
		}, nil)
		assert.False(t, res.Checks.DatesValid)
		assert.Contains(t, res.Issues, "birth date is not before issue date")
	})

	t.Run("enforces minimum exam age", func(t *testing.T) {
		res := v.Validate("marksheet_10", map[string]string{
			"date_of_birth": "2015-01-01",
			"exam_date":     "2018-03-01",
		}, nil)
		assert.False(t, res.Checks.DatesValid)
	})

	t.Run("enforces minimum age at issue for gated types", func(t *testing.T) {
		res := v.Validate("driving_license", map[string]string{
			"license_number": "KA0520190001234",
			"date_of_birth":  "2010-01-01",
			"issue_date":     "2024-01-01",
		}, nil)
		assert.False(t, res.Checks.DatesValid)

		res = v.Validate("voter_id", map[string]string{
			"epic_number":   "ABC1234567",
			"date_of_birth": "2010-01-01",
			"issue_date":    "2024-01-01",
		}, nil)
		assert.False(t, res.Checks.DatesValid)
	})
}

func TestValidate_IDFormats(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		docType string
		field   string
		value   string
		valid   bool
	}{
		{"valid pan", "pan", "pan_number", "ABCDE1234F", true},
		{"pan with digits first", "pan", "pan_number", "1234ABCDEF", false},
		{"valid aadhaar", "aadhaar", "aadhaar_number", "234512345678", true},
		{"aadhaar starting with zero", "aadhaar", "aadhaar_number", "034512345678", false},
		{"aadhaar starting with one", "aadhaar", "aadhaar_number", "134512345678", false},
		{"valid passport", "passport", "passport_number", "M1234567", true},
		{"passport too long", "passport", "passport_number", "M12345678", false},
		{"valid driving license", "driving_license", "license_number", "KA0520190001234", true},
		{"driving license too short", "driving_license", "license_number", "KA05123", false},
		{"valid voter id", "voter_id", "epic_number", "ABC1234567", true},
		{"voter id wrong shape", "voter_id", "epic_number", "AB12345678", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.docType, map[string]string{tt.field: tt.value}, nil)
			assert.Equal(t, tt.valid, res.Checks.IDFormatValid)
		})
	}

	t.Run("missing identifier on id-class type fails", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{"name": "Asha Verma"}, nil)
		assert.False(t, res.Checks.IDFormatValid)
		assert.False(t, res.Passed)
	})

	t.Run("non id-class type skips the check", func(t *testing.T) {
		res := v.Validate("marksheet_10", map[string]string{"roll_number": "12345"}, nil)
		assert.True(t, res.Checks.IDFormatValid)
	})

	t.Run("identifier is normalized before matching", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{"pan_number": " abcde1234f "}, nil)
		assert.True(t, res.Checks.IDFormatValid)
	})
}

func TestValidate_LogicalConsistency(t *testing.T) {
	v := newTestValidator()

	t.Run("full name must contain fragments", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{
			"pan_number": "ABCDE1234F",
			"name":       "Asha Verma",
			"first_name": "Asha",
			"last_name":  "Sharma",
		}, nil)
		assert.False(t, res.Checks.LogicalChecksPassed)
	})

	t.Run("metadata name matches on word overlap", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{
			"pan_number": "ABCDE1234F",
			"name":       "Asha K Verma",
		}, map[string]string{"name": "ASHA VERMA"})
		assert.True(t, res.Checks.LogicalChecksPassed)
	})

	t.Run("metadata mismatch on non-name field", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{
			"pan_number": "ABCDE1234F",
		}, map[string]string{"pan_number": "FGHIJ5678K"})
		assert.False(t, res.Checks.LogicalChecksPassed)
	})

	t.Run("percentage bounds", func(t *testing.T) {
		res := v.Validate("marksheet_10", map[string]string{"percentage": "104.5"}, nil)
		assert.False(t, res.Checks.LogicalChecksPassed)

		res = v.Validate("marksheet_10", map[string]string{"percentage": "84.5"}, nil)
		assert.True(t, res.Checks.LogicalChecksPassed)
	})

	t.Run("gpa bounds", func(t *testing.T) {
		res := v.Validate("marksheet_12", map[string]string{"cgpa": "11.2"}, nil)
		assert.False(t, res.Checks.LogicalChecksPassed)
	})

	t.Run("bank statement balance reconciliation", func(t *testing.T) {
		res := v.Validate("bank_statement", map[string]string{
			"opening_balance": "1000.00",
			"total_credits":   "500.00",
			"total_debits":    "200.00",
			"closing_balance": "1300.50",
		}, nil)
		assert.True(t, res.Checks.LogicalChecksPassed, "within one unit of tolerance")

		res = v.Validate("bank_statement", map[string]string{
			"opening_balance": "1000.00",
			"total_credits":   "500.00",
			"total_debits":    "200.00",
			"closing_balance": "1500.00",
		}, nil)
		assert.False(t, res.Checks.LogicalChecksPassed)
	})
}

func TestValidate_DataConsistency(t *testing.T) {
	v := newTestValidator()

	t.Run("flags placeholder values", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{
			"pan_number": "ABCDE1234F",
			"name":       "sample",
		}, nil)
		assert.False(t, res.Checks.DataConsistent)
	})

	t.Run("flags repeated single character", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{
			"pan_number": "ABCDE1234F",
			"name":       "aaaaaa",
		}, nil)
		assert.False(t, res.Checks.DataConsistent)
	})

	t.Run("flags duplicated identifier values", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{
			"pan_number":      "ABCDE1234F",
			"passport_number": "ABCDE1234F",
		}, nil)
		assert.False(t, res.Checks.DataConsistent)
	})

	t.Run("clean data passes", func(t *testing.T) {
		res := v.Validate("pan", map[string]string{
			"pan_number":    "ABCDE1234F",
			"name":          "Asha Verma",
			"date_of_birth": "1990-04-21",
		}, nil)
		require.True(t, res.Passed, "issues: %v", res.Issues)
		assert.Empty(t, res.Issues)
	})
}
