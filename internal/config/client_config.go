package config

import (
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "http://localhost:8000/api"
	DefaultRefreshPath = "/auth/token/refresh/"
	DefaultLoginRoute  = "/login"
)

type Client struct {
	BaseURL         string        `envconfig:"API_BASE_URL" default:"http://localhost:8000/api"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	RefreshPath     string        `envconfig:"REFRESH_PATH" default:"/auth/token/refresh/"`
	LoginRoute      string        `envconfig:"LOGIN_ROUTE" default:"/login"`
	CoalesceRefresh bool          `envconfig:"COALESCE_REFRESH" default:"true"`
}

var _ ClientConfig = Client{}

// GetBaseURL returns the origin all relative request paths resolve against,
// e.g. "https://fleet.example.com/api". Trailing slashes are removed.
func (c Client) GetBaseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c Client) GetHTTPTimeout() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 30 * time.Second
	}
	return c.HTTPTimeout
}

func (c Client) GetRefreshPath() string {
	if c.RefreshPath == "" {
		return DefaultRefreshPath
	}
	return c.RefreshPath
}

func (c Client) GetLoginRoute() string {
	if c.LoginRoute == "" {
		return DefaultLoginRoute
	}
	return c.LoginRoute
}

func (c Client) GetCoalesceRefresh() bool {
	return c.CoalesceRefresh
}
