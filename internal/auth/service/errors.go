package service

import (
	"errors"
	"fmt"
)

// Outcomes a caller can act on. Everything a client did wrong maps to one of
// these; anything else is wrapped in ErrUpstream.
var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrConflict           = errors.New("conflict")
	ErrMFANotEnabled      = errors.New("mfa_not_enabled")
	ErrMFAAlreadyEnabled  = errors.New("mfa_already_enabled")
	ErrMFANotEnrolled     = errors.New("mfa_not_enrolled")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrNotFound           = errors.New("not_found")

	// ErrUpstream marks a store or hashing failure. The request can be
	// retried; the cause is wrapped for logging.
	ErrUpstream = errors.New("upstream_failure")
)

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
