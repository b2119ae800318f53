package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type SessionConfig interface {
	GetSessionStore() string
	GetSessionFile() string
	GetRedisURL() string
	GetRedisKeyPrefix() string
}

type Session struct {
	Store          string `envconfig:"SESSION_STORE" default:"file"`
	File           string `envconfig:"SESSION_FILE"`
	RedisURL       string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisKeyPrefix string `envconfig:"REDIS_PREFIX" default:"fleet:session"`
}

var _ SessionConfig = Session{}

func (s Session) validate() error {
	switch s.Store {
	case StoreFile, StoreRedis, StoreMemory:
		return nil
	default:
		return fmt.Errorf("unsupported SESSION_STORE: %s", s.Store)
	}
}

func (s Session) GetSessionStore() string {
	if s.Store == "" {
		return StoreFile
	}
	return s.Store
}

// GetSessionFile defaults to <user config dir>/fleetctl/session.json.
func (s Session) GetSessionFile() string {
	if s.File != "" {
		return s.File
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "fleetctl", "session.json")
}

func (s Session) GetRedisURL() string {
	return s.RedisURL
}

func (s Session) GetRedisKeyPrefix() string {
	return s.RedisKeyPrefix
}
