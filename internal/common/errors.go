// Package common defines sentinel errors and small helpers shared by the
// server, the store backends and the CLI client. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Request shape errors.
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownAction    = errors.New("unknown action")

	// Validation errors.
	ErrValidation      = errors.New("validation error")
	ErrNothingToUpdate = errors.New("update request cannot be empty")
	ErrUnsupportedKind = errors.New("unsupported validation kind")

	// Signature provider errors.
	ErrResourceGone = errors.New("resource gone")
	ErrCollaborator = errors.New("collaborator failure")
)
