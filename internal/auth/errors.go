package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong passwords so
	// the caller cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is the uniform verification failure for local tokens.
	// Malformed input, bad signatures and kind mismatches are not
	// distinguished beyond this sentinel.
	ErrTokenInvalid = errors.New("auth: invalid token")

	ErrConflict  = errors.New("auth: already exists")
	ErrForbidden = errors.New("auth: forbidden")
	ErrNotFound  = errors.New("auth: not found")
)

// ErrTokenExpired matches ErrTokenInvalid under errors.Is but stays
// detectable where the refresh flow wants to tell the client to log in again.
var ErrTokenExpired = fmt.Errorf("auth: token expired: %w", ErrTokenInvalid)

// FederationError reports a failure while federating identity from the
// external IdP. Unlike local token errors, the reason is preserved: the
// caller is a trusted frontend and needs it for debugging.
type FederationError struct {
	Reason string
	Err    error
}

func (e *FederationError) Error() string {
	if e.Err != nil {
		return "auth: federation: " + e.Reason + ": " + e.Err.Error()
	}
	return "auth: federation: " + e.Reason
}

func (e *FederationError) Unwrap() error { return e.Err }

// NewFederationError wraps cause with a caller-visible reason.
func NewFederationError(reason string, cause error) *FederationError {
	return &FederationError{Reason: reason, Err: cause}
}
