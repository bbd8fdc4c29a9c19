// Package apperr holds the error taxonomy shared by the gateway, pipeline
// and REST surface. Handlers map these to ack codes / HTTP statuses.
package apperr

import "errors"

var (
	// ErrUnauthorized means the credential itself is bad or expired.
	ErrUnauthorized = errors.New("authentication failed")
	// ErrForbidden means the caller lacks a permission bit for the operation.
	ErrForbidden  = errors.New("permission denied")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrDecrypt is contained within the read path and never reaches a caller.
	ErrDecrypt = errors.New("decryption failed")
	// ErrDependency marks a retryable durable/ephemeral store failure.
	ErrDependency = errors.New("dependency unavailable")
)

// FieldErrors carries per-field validation detail to the ack.
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string {
	return "validation failed"
}

func (e *FieldErrors) Unwrap() error {
	return ErrValidation
}

// Code returns the wire-level ack code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDependency):
		return "retry"
	default:
		return "internal"
	}
}
