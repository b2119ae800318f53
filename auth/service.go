package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-fleet-client/apiclient"
	"github.com/jrsteele09/go-fleet-client/session"
)

const (
	loginPath    = "/auth/login/"
	logoutPath   = "/auth/logout/"
	registerPath = "/auth/register/"
	mePath       = "/auth/me/"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User    session.User `json:"user"`
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

// RegisterRequest creates an account. Role defaults to fleet_owner on the backend.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type RegisteredUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Service runs the login, logout and profile calls and keeps State in step.
type Service struct {
	client *apiclient.Client
	state  *State
	logger zerolog.Logger
}

type ServiceOption func(*Service)

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(client *apiclient.Client, state *State, opts ...ServiceOption) *Service {
	if client == nil {
		panic("[NewService] client is required")
	}
	if state == nil {
		panic("[NewService] state is required")
	}
	s := &Service{client: client, state: state, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) State() *State {
	return s.state
}

// Login exchanges credentials for a token pair and persists the session.
// A failed login leaves State.Error set to the message for the user.
func (s *Service) Login(ctx context.Context, email, password string) (*session.User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateCredentials(email, password); err != nil {
		s.state.loginFailed("Email and password are required.")
		return nil, err
	}
	s.state.loginStarted()

	req, err := apiclient.NewJSONRequest(http.MethodPost, loginPath, loginRequest{Email: email, Password: password})
	if err != nil {
		s.state.loginFailed(defaultLoginError)
		return nil, err
	}
	// A 401 from the login endpoint means bad credentials, not an expired token.
	req.NoRefresh = true

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		s.state.loginFailed(defaultLoginError)
		return nil, &LoginError{Message: defaultLoginError, cause: err}
	}
	if !resp.OK() {
		return nil, s.rejectLogin(resp)
	}

	var out loginResponse
	if err := resp.DecodeJSON(&out); err != nil {
		s.state.loginFailed(defaultLoginError)
		return nil, &LoginError{StatusCode: resp.StatusCode, Message: defaultLoginError, cause: err}
	}
	if err := ValidateAccessToken(out.Access); err != nil {
		s.state.loginFailed(defaultLoginError)
		return nil, &LoginError{StatusCode: resp.StatusCode, Message: defaultLoginError, cause: errors.Wrap(err, "login response")}
	}

	if err := s.client.Sessions().SaveLogin(ctx, out.User, out.Access, out.Refresh); err != nil {
		s.state.loginFailed(defaultLoginError)
		return nil, errors.Wrap(err, "Service.Login save session")
	}
	s.state.loginSucceeded(out.User, out.Access)
	s.logger.Info().Int("user_id", out.User.ID).Str("role", out.User.Role).Msg("logged in")
	return &out.User, nil
}

func (s *Service) rejectLogin(resp *apiclient.Response) error {
	var he *apiclient.HTTPError
	msg := defaultLoginError
	if errors.As(resp.Err(), &he) && he.Message() != "" {
		msg = he.Message()
	}
	s.state.loginFailed(msg)

	var cause error = resp.Err()
	if resp.StatusCode == http.StatusUnauthorized {
		cause = ErrInvalidCredentials
	}
	return &LoginError{StatusCode: resp.StatusCode, Message: msg, cause: cause}
}

// Logout tells the backend to revoke the refresh token and always clears the
// local session, even when that call fails.
func (s *Service) Logout(ctx context.Context) error {
	sessions := s.client.Sessions()
	refresh, err := sessions.RefreshToken(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not read refresh token for logout")
	}

	if refresh != "" {
		resp, err := s.client.Post(ctx, logoutPath, logoutRequest{Refresh: refresh})
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("logout call failed, logging out locally anyway")
		case !resp.OK():
			s.logger.Warn().Err(resp.Err()).Msg("logout call failed, logging out locally anyway")
		}
	}

	clearErr := sessions.Clear(ctx)
	s.state.loggedOut()
	return errors.Wrap(clearErr, "Service.Logout clear session")
}

// Me fetches the current user's profile and stores it.
func (s *Service) Me(ctx context.Context) (*session.User, error) {
	var u session.User
	if err := s.client.GetJSON(ctx, mePath, nil, &u); err != nil {
		return nil, err
	}
	if err := s.client.Sessions().SetUser(ctx, u); err != nil {
		return nil, err
	}
	s.state.userLoaded(u)
	return &u, nil
}

// Register creates an account. It does not log the new user in.
func (s *Service) Register(ctx context.Context, r RegisterRequest) (*RegisteredUser, error) {
	if err := ValidateRegistration(r); err != nil {
		return nil, err
	}
	req, err := apiclient.NewJSONRequest(http.MethodPost, registerPath, r)
	if err != nil {
		return nil, err
	}
	req.NoRefresh = true

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out RegisteredUser
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
