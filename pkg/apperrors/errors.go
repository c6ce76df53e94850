// Package apperrors defines sentinel errors shared across service layers.
//
// Handlers map these to HTTP statuses: ErrNotFound -> 404, ErrForbidden -> 403,
// ErrValidation -> 400, ErrUpstream -> 502, anything else -> 500.
package apperrors

import "errors"

var (
	// ErrNotFound covers both genuinely absent resources and ownership
	// violations on cached extraction records, which are deliberately
	// indistinguishable so identifiers cannot be enumerated.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller is not the owner of a
	// persistent resource whose existence is not itself sensitive.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation covers client mistakes: bad file type or size, malformed
	// connection strings, mismatched identifiers on apply.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream covers failures of external collaborators: schema
	// extraction, object storage, the LLM endpoint.
	ErrUpstream = errors.New("upstream failure")

	// ErrConflict is returned when a unique constraint is violated, e.g.
	// duplicate data source names for a user.
	ErrConflict = errors.New("conflict")
)
