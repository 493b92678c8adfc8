package core

import "errors"

// ErrMalformedResponse marks an extractor response that failed schema
// validation. The condition is permanent for the submitted document, so the
// pipeline must not retry it.
var ErrMalformedResponse = errors.New("malformed extractor response")
