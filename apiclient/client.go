// Package apiclient is an HTTP client for the fleet backend that attaches the
// stored access token to every request and, on a 401, refreshes the token
// once and replays the request once.
package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-fleet-client/internal/config"
	"github.com/jrsteele09/go-fleet-client/session"
)

// SessionExpiredHandler is told when a refresh fails and the session cannot
// continue. Implementations typically clear the store and send the user to
// the login screen.
type SessionExpiredHandler interface {
	SessionExpired(ctx context.Context, cause error)
}

// TokenRefreshedHandler is told about every access token obtained by a refresh.
type TokenRefreshedHandler interface {
	TokenRefreshed(ctx context.Context, accessToken string)
}

type SessionExpiredFunc func(ctx context.Context, cause error)

func (f SessionExpiredFunc) SessionExpired(ctx context.Context, cause error) { f(ctx, cause) }

type Client struct {
	baseURL     string
	origin      *url.URL
	http        *http.Client
	timeout     time.Duration
	sessions    *session.Manager
	logger      zerolog.Logger
	refreshPath string
	onExpired   SessionExpiredHandler
	onRefreshed TokenRefreshedHandler
	debug       bool

	coalesce     bool
	refreshGroup singleflight.Group

	headersMu sync.RWMutex
	headers   http.Header
}

// New builds a client for baseURL (e.g. "https://fleet.example.com/api")
// that reads and writes credentials through store.
func New(baseURL string, store session.Store, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[apiclient.New] baseURL is required")
	}
	origin, err := url.ParseRequestURI(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[apiclient.New] invalid baseURL")
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, errors.Errorf("[apiclient.New] baseURL %q has no scheme or host", baseURL)
	}
	if store == nil {
		return nil, errors.New("[apiclient.New] store is required")
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		origin:      origin,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      log.Logger,
		refreshPath: config.DefaultRefreshPath,
		coalesce:    true,
		headers:     http.Header{"Accept": []string{"application/json"}},
	}

	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "[apiclient.New] option")
		}
	}
	if c.timeout > 0 {
		c.http.Timeout = c.timeout
	}

	c.sessions = session.NewManager(store, session.WithLogger(c.logger))
	if c.onExpired == nil {
		c.onExpired = SessionExpiredFunc(c.clearSession)
	}

	transport := baseTransport(c.http.Transport)
	if c.debug {
		transport = &debugTransport{base: transport, logger: c.logger}
	}
	c.http.Transport = &requestIDTransport{base: transport}

	return c, nil
}

// NewFromConfig builds a client from the loaded configuration.
func NewFromConfig(cfg config.Config, store session.Store, opts ...Option) (*Client, error) {
	base := []Option{
		WithHTTPTimeout(cfg.GetHTTPTimeout()),
		WithRefreshPath(cfg.GetRefreshPath()),
		WithDebugLogging(cfg.GetDebug()),
	}
	if !cfg.GetCoalesceRefresh() {
		base = append(base, WithPerRequestRefresh())
	}
	return New(cfg.GetBaseURL(), store, append(base, opts...)...)
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Sessions gives access to the credential store the client reads from.
func (c *Client) Sessions() *session.Manager {
	return c.sessions
}

// DefaultHeaders returns a copy of the headers sent on every request.
func (c *Client) DefaultHeaders() http.Header {
	c.headersMu.RLock()
	defer c.headersMu.RUnlock()
	return c.headers.Clone()
}

func (c *Client) setDefaultHeader(key, value string) {
	c.headersMu.Lock()
	defer c.headersMu.Unlock()
	c.headers.Set(key, value)
}

// Do dispatches req. Any status other than an unrecoverable 401 is returned as
// a *Response with a nil error, including 4xx and 5xx. Transport errors are
// returned unchanged. When the refresh after a 401 fails the session is ended
// and the error wraps ErrSessionExpired.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("apiclient: nil request")
	}
	return c.dispatch(ctx, req, 0)
}

// dispatch sends req and handles a 401. retries counts replays already made
// for this request and is never more than 1.
func (c *Client) dispatch(ctx context.Context, req *Request, retries int) (*Response, error) {
	token, err := c.sessions.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || req.NoRefresh || retries > 0 {
		return resp, nil
	}

	c.logger.Debug().Str("method", req.Method).Str("path", req.Path).Msg("access token rejected, refreshing")
	if err := c.refresh(ctx, token); err != nil {
		return nil, err
	}

	requestRetriesTotal.Inc()
	return c.dispatch(ctx, req, retries+1)
}

func (c *Client) send(ctx context.Context, req *Request, token string) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrapf(err, "Client.send build %s %s", method, req.Path)
	}

	c.headersMu.RLock()
	for k, v := range c.headers {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	c.headersMu.RUnlock()
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}

	// The stored token always wins over a default Authorization header.
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	} else {
		httpReq.Header.Del("Authorization")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	b, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "Client.send read %s %s", method, req.Path)
	}
	requestsTotal.WithLabelValues(method, strconv.Itoa(httpResp.StatusCode)).Inc()

	return &Response{
		Method:     method,
		Path:       req.Path,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       b,
	}, nil
}

// resolve joins a relative path onto the base URL. Absolute URLs are accepted
// only on the base origin, so the bearer token never leaves it.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	u := path
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		target, err := url.Parse(path)
		if err != nil {
			return "", errors.Wrapf(err, "Client.resolve %s", path)
		}
		if !strings.EqualFold(target.Scheme, c.origin.Scheme) || !strings.EqualFold(target.Host, c.origin.Host) {
			return "", errors.Wrapf(ErrForeignOrigin, "Client.resolve %s://%s", target.Scheme, target.Host)
		}
	} else {
		u = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) == 0 {
		return u, nil
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode(), nil
}

func (c *Client) clearSession(ctx context.Context, cause error) {
	if err := c.sessions.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear session after refresh failure")
	}
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPut, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPatch, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := NewJSONRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// GetJSON fetches path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(out)
}

// PostJSON posts in as JSON and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.Post(ctx, path, in)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(out)
}
