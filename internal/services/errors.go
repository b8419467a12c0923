package services

import "errors"

// Sentinel errors surfaced to handlers. Wrapped values carry detail; match
// with errors.Is.
var (
	// ErrValidation rejects malformed input (empty message, missing field).
	ErrValidation = errors.New("validation failed")

	// ErrForbidden rejects operations on a chat the caller does not own.
	ErrForbidden = errors.New("access denied")

	// ErrNotFound marks a referenced chat or log that does not exist.
	ErrNotFound = errors.New("chat not found")
)
