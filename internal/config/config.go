package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix is prepended to every variable name. Each variable is also read
// without the prefix, so API_BASE_URL and FLEET_API_BASE_URL are equivalent.
const envPrefix = "FLEET"

type Config interface {
	EnvConfig
	ClientConfig
	SessionConfig
	MockAPIConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDebug() bool
}

type ClientConfig interface {
	GetBaseURL() string
	GetHTTPTimeout() time.Duration
	GetRefreshPath() string
	GetLoginRoute() string
	GetCoalesceRefresh() bool
}

type mainConfig struct {
	EnvVars
	Client
	Session
	MockAPI
}

// New reads the configuration from the environment.
func New() (Config, error) {
	var c mainConfig
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := c.Session.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewForTesting returns a configuration with defaults and the given base URL,
// ignoring the environment.
func NewForTesting(baseURL string) Config {
	return mainConfig{
		EnvVars: EnvVars{AppName: "fleetctl", Env: "TEST", LogLevel: "disabled"},
		Client: Client{
			BaseURL:         baseURL,
			HTTPTimeout:     5 * time.Second,
			RefreshPath:     DefaultRefreshPath,
			LoginRoute:      DefaultLoginRoute,
			CoalesceRefresh: true,
		},
		Session: Session{Store: StoreMemory, RedisKeyPrefix: "fleet:session"},
		MockAPI: MockAPI{
			Port:            "8000",
			Secret:          "test-secret",
			AccessTokenTTL:  5 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
	}
}
