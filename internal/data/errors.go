package data

import "errors"

// Shared sentinel errors for data-layer repositories. Services match on these
// rather than on driver-specific error types.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDocTypeNotFound indicates no document-type config exists for the
	// code, neither owner-scoped nor global.
	ErrDocTypeNotFound = errors.New("document type config not found")

	// ErrDuplicateClientRef indicates the owner already submitted a request
	// with the same client reference.
	ErrDuplicateClientRef = errors.New("duplicate client reference")

	// ErrInvalidStatusTransition indicates a requested state change is not
	// allowed from the row's current status.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrCacheMiss indicates the cache holds no value for the key.
	ErrCacheMiss = errors.New("cache miss")
)
