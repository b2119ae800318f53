package apiclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Client in New. Options run before the request-id
// transport is installed, so transports added here sit beneath it.
type Option func(*Client) error

// WithHTTPClient replaces the underlying http.Client. The client is copied;
// the caller's value is not modified. A timeout set with WithHTTPTimeout is
// applied to the copy whatever the option order.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		cp := *hc
		c.http = &cp
		return nil
	}
}

// WithHTTPTimeout bounds each dispatch, including reading the response body.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.timeout = d
		return nil
	}
}

// WithDebugLogging dumps every request and response at debug level.
func WithDebugLogging(enabled bool) Option {
	return func(c *Client) error {
		if enabled {
			c.debug = true
		}
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithRefreshPath overrides the refresh endpoint, "/auth/token/refresh/" by default.
func WithRefreshPath(path string) Option {
	return func(c *Client) error {
		if path == "" {
			return fmt.Errorf("refresh path must not be empty")
		}
		c.refreshPath = path
		return nil
	}
}

// WithSessionExpiredHandler is notified once per failed refresh. The default
// handler clears the session store.
func WithSessionExpiredHandler(h SessionExpiredHandler) Option {
	return func(c *Client) error {
		if h == nil {
			return fmt.Errorf("session expired handler must not be nil")
		}
		c.onExpired = h
		return nil
	}
}

// WithPerRequestRefresh makes every request that receives a 401 perform its
// own refresh call instead of sharing one in-flight refresh.
func WithPerRequestRefresh() Option {
	return func(c *Client) error {
		c.coalesce = false
		return nil
	}
}

// WithDefaultHeader adds a header sent on every request. Per-request headers
// take precedence.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) error {
		c.headers.Set(key, value)
		return nil
	}
}

func WithTokenRefreshedHandler(h TokenRefreshedHandler) Option {
	return func(c *Client) error {
		if h == nil {
			return fmt.Errorf("token refreshed handler must not be nil")
		}
		c.onRefreshed = h
		return nil
	}
}
