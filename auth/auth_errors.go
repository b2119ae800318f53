package auth

import (
	apperrors "github.com/jrsteele09/go-fleet-client/internal/errors"
)

const defaultLoginError = "An error occurred during login."

var (
	ErrMissingCredentials = apperrors.ErrMissingCredentials
	ErrInvalidCredentials = apperrors.ErrInvalidCredentials
	ErrNotAuthenticated   = apperrors.ErrNotAuthenticated
	ErrInvalidRequest     = apperrors.ErrInvalidRequest
	ErrInvalidToken       = apperrors.ErrInvalidToken
)

// LoginError carries the message shown to the user after a failed login.
type LoginError struct {
	StatusCode int
	Message    string
	cause      error
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() error {
	return e.cause
}
