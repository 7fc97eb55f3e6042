// Package common defines shared constants and sentinel errors used across
// the intake server, the upload orchestrator and the CLI client. Callers
// should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Security gating errors. The user only ever sees a generic message
	// for ErrSecurityViolation; the details go to the security log.
	ErrSecurityViolation = errors.New("invalid input")
	ErrRateLimited       = errors.New("too many attempts")
	ErrSubmissionBlocked = errors.New("submission blocked")

	// Upload errors.
	ErrInvalidFile          = errors.New("invalid file")
	ErrTooManyFiles         = errors.New("too many files")
	ErrUploadCancelled      = errors.New("upload cancelled")
	ErrUploadTimeout        = errors.New("upload timed out")
	ErrNotRetryable         = errors.New("file is not retryable")
	ErrConfirmationRequired = errors.New("confirmation required")

	// Storage authorization errors.
	ErrPermissionDenied = errors.New("permission denied")
	ErrSessionMismatch  = errors.New("session mismatch")

	// Token errors (invalid, malformed or expired upload session token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
