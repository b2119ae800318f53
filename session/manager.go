package session

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Manager reads and writes the session through a Store.
type Manager struct {
	store  Store
	logger zerolog.Logger
}

type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(store Store, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("[NewManager] store is required")
	}
	m := &Manager{store: store, logger: log.Logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// AccessToken returns the stored access token, or "" when there is none.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	return m.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when there is none.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	return m.get(ctx, KeyRefreshToken)
}

func (m *Manager) get(ctx context.Context, key string) (string, error) {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "Manager.get %s", key)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// Token returns the stored pair as an oauth2 token. Expiry is taken from the
// access token's exp claim when it can be decoded. Returns nil when no access
// token is stored.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	access, err := m.AccessToken(ctx)
	if err != nil || access == "" {
		return nil, err
	}
	refresh, err := m.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer", RefreshToken: refresh}
	if claims, err := ParseClaims(access); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok, nil
}

// CurrentUser returns the stored user record, or nil when none is stored.
func (m *Manager) CurrentUser(ctx context.Context) (*User, error) {
	raw, err := m.get(ctx, KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.logger.Warn().Err(err).Msg("discarding unreadable stored user")
		return nil, nil
	}
	return &u, nil
}

// SaveLogin persists the result of a successful login.
func (m *Manager) SaveLogin(ctx context.Context, user User, access, refresh string) error {
	if err := m.SetUser(ctx, user); err != nil {
		return err
	}
	if err := m.SetAccessToken(ctx, access); err != nil {
		return err
	}
	return m.SetRefreshToken(ctx, refresh)
}

func (m *Manager) SetAccessToken(ctx context.Context, token string) error {
	return errors.Wrap(m.store.Set(ctx, KeyAccessToken, token), "Manager.SetAccessToken")
}

func (m *Manager) SetRefreshToken(ctx context.Context, token string) error {
	return errors.Wrap(m.store.Set(ctx, KeyRefreshToken, token), "Manager.SetRefreshToken")
}

func (m *Manager) SetUser(ctx context.Context, user User) error {
	b, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "Manager.SetUser marshal")
	}
	return errors.Wrap(m.store.Set(ctx, KeyUser, string(b)), "Manager.SetUser")
}

// Clear removes the credential pair and the user record.
func (m *Manager) Clear(ctx context.Context) error {
	return errors.Wrap(m.store.Clear(ctx, Keys...), "Manager.Clear")
}

// IsAuthenticated reports whether an access token is stored. The token may
// still be rejected by the backend.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	tok, err := m.AccessToken(ctx)
	return err == nil && tok != ""
}
