// Package errors provides error classification helpers for metric tagging.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/data"
)

// sentinelClasses maps the pipeline's sentinel errors to stable class names.
// Bare errors.New sentinels would otherwise all collapse into
// "errors_errorstring" and carry no signal.
var sentinelClasses = []struct {
	err   error
	class string
}{
	{core.ErrMalformedResponse, "malformed_extractor_response"},
	{data.ErrNotFound, "not_found"},
	{data.ErrDocTypeNotFound, "doctype_not_found"},
	{data.ErrDuplicateClientRef, "duplicate_client_ref"},
	{data.ErrInvalidStatusTransition, "invalid_status_transition"},
	{data.ErrCacheMiss, "cache_miss"},
}

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// Known sentinels get dedicated classes; anything else unwraps to the innermost
// concrete type and converts it to snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for _, s := range sentinelClasses {
		if goerrors.Is(err, s.err) {
			return s.class
		}
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
