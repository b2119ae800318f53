package config

import (
	"fmt"
	"time"
)

type MockAPIConfig interface {
	GetMockPort() string
	GetMockSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
}

type MockAPI struct {
	Port            string        `envconfig:"MOCK_PORT" default:"8000"`
	Secret          string        `envconfig:"MOCK_SECRET" default:"insecure-dev-secret"`
	AccessTokenTTL  time.Duration `envconfig:"MOCK_ACCESS_TTL" default:"5m"`
	RefreshTokenTTL time.Duration `envconfig:"MOCK_REFRESH_TTL" default:"24h"`
}

var _ MockAPIConfig = MockAPI{}

func (m MockAPI) GetMockPort() string {
	port := m.Port
	if port == "" {
		port = "8000"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (m MockAPI) GetMockSecret() string {
	return m.Secret
}

func (m MockAPI) GetAccessTokenTTL() time.Duration {
	if m.AccessTokenTTL <= 0 {
		return 5 * time.Minute
	}
	return m.AccessTokenTTL
}

func (m MockAPI) GetRefreshTokenTTL() time.Duration {
	if m.RefreshTokenTTL <= 0 {
		return 24 * time.Hour
	}
	return m.RefreshTokenTTL
}
