// Package auth tracks who is logged in and drives login, logout and the
// end of a session when a token refresh fails.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-fleet-client/apiclient"
	"github.com/jrsteele09/go-fleet-client/session"
)

// Snapshot is the auth state at one point in time.
type Snapshot struct {
	User          *session.User
	AccessToken   string
	// TokenExpiry is the access token's exp claim, zero when it has none.
	TokenExpiry   time.Time
	Authenticated bool
	Loading       bool
	Error         string
}

// TokenExpired reports whether the access token has passed its exp claim at
// now. The client refreshes on the next 401 either way.
func (s Snapshot) TokenExpired(now time.Time) bool {
	return s.AccessToken != "" && !s.TokenExpiry.IsZero() && !now.Before(s.TokenExpiry)
}

func tokenExpiry(access string) time.Time {
	claims, err := session.ParseClaims(access)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}

// State is the process-wide auth state. It ends the session when the API
// client reports a failed refresh.
type State struct {
	sessions   *session.Manager
	navigator  Navigator
	loginRoute string
	logger     zerolog.Logger

	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]func(Snapshot)
	nextID int
}

var (
	_ apiclient.SessionExpiredHandler = (*State)(nil)
	_ apiclient.TokenRefreshedHandler = (*State)(nil)
)

type StateOption func(*State)

// WithLoginRoute overrides LoginRoute.
func WithLoginRoute(route string) StateOption {
	return func(s *State) {
		if route != "" {
			s.loginRoute = route
		}
	}
}

func WithStateLogger(logger zerolog.Logger) StateOption {
	return func(s *State) {
		s.logger = logger
	}
}

func NewState(sessions *session.Manager, navigator Navigator, opts ...StateOption) *State {
	if sessions == nil {
		panic("[NewState] sessions is required")
	}
	if navigator == nil {
		panic("[NewState] navigator is required")
	}
	s := &State{
		sessions:   sessions,
		navigator:  navigator,
		loginRoute: LoginRoute,
		logger:     log.Logger,
		subs:       make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe calls fn after every change until the returned func is called.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Restore loads the state persisted by a previous run. The user counts as
// authenticated when an access token is stored.
func (s *State) Restore(ctx context.Context) error {
	tok, err := s.sessions.Token(ctx)
	if err != nil {
		return err
	}
	user, err := s.sessions.CurrentUser(ctx)
	if err != nil {
		return err
	}
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{User: user}
		if tok != nil {
			snap.AccessToken = tok.AccessToken
			snap.TokenExpiry = tok.Expiry
			snap.Authenticated = true
		}
	})
	return nil
}

// SessionExpired clears the session and navigates to the login route.
func (s *State) SessionExpired(ctx context.Context, cause error) {
	if err := s.sessions.Clear(ctx); err != nil {
		s.logger.Error().Stack().Err(err).Msg("failed to clear session store")
	}
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{Error: "Your session has expired. Please log in again."}
	})
	s.logger.Info().Err(cause).Str("route", s.loginRoute).Msg("session ended")
	s.navigator.Navigate(ctx, s.loginRoute)
}

// TokenRefreshed records the access token obtained by a refresh.
func (s *State) TokenRefreshed(_ context.Context, accessToken string) {
	s.update(func(snap *Snapshot) {
		snap.AccessToken = accessToken
		snap.TokenExpiry = tokenExpiry(accessToken)
	})
}

func (s *State) loginStarted() {
	s.update(func(snap *Snapshot) {
		snap.Loading = true
		snap.Error = ""
	})
}

func (s *State) loginSucceeded(user session.User, access string) {
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{User: &user, AccessToken: access, TokenExpiry: tokenExpiry(access), Authenticated: true}
	})
}

func (s *State) loginFailed(msg string) {
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{Error: msg}
	})
}

func (s *State) loggedOut() {
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{}
	})
}

func (s *State) userLoaded(user session.User) {
	s.update(func(snap *Snapshot) {
		snap.User = &user
	})
}

// update applies f and notifies subscribers outside the lock.
func (s *State) update(f func(*Snapshot)) {
	s.mu.Lock()
	f(&s.snap)
	snap := s.snap
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
