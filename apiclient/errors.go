package apiclient

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/jrsteele09/go-fleet-client/internal/errors"
)

// Re-exported so callers compare against a single symbol.
var (
	// ErrSessionExpired is returned when a 401 could not be recovered by a
	// token refresh. The session has been ended when this is returned.
	ErrSessionExpired = apperrors.ErrSessionExpired

	// ErrNoRefreshToken is the cause of ErrSessionExpired when no refresh
	// token was stored.
	ErrNoRefreshToken = apperrors.ErrNoRefreshToken

	// ErrForeignOrigin is returned by Do for an absolute URL whose scheme or
	// host differs from the base URL. Nothing is sent.
	ErrForeignOrigin = apperrors.ErrForeignOrigin
)

// IsSessionExpired reports whether err ended the session.
func IsSessionExpired(err error) bool { return apperrors.Is(err, ErrSessionExpired) }

// HTTPError is a response with status >= 400.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	msg := e.Message()
	if msg == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Message returns the backend's "error" or "detail" field, if the body has one.
func (e *HTTPError) Message() string {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Detail
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if apperrors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
