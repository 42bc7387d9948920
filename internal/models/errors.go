package models

import "errors"

// Operation errors reported back on the originating channel. Each maps to a
// stable wire code so a client can tell a lost race from a missing ride from
// a bad code.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAuth        = errors.New("not authorized")
	ErrInvalidCode = errors.New("invalid code")
)

// ErrorCode returns the wire code for err, or "internal" for anything outside
// the taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	default:
		return "internal"
	}
}
