// Package mockapi is an in-process fleet backend. It serves the auth wire
// contract and the fleet dashboard endpoints with seeded data and is used by
// the cmd/mockapi binary and by the client tests.
package mockapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-fleet-client/internal/config"
	"github.com/jrsteele09/go-fleet-client/session"
)

const DefaultPrefix = "/api"

// Seeded accounts.
const (
	DemoAdminEmail    = "admin@fleet.local"
	DemoAdminPassword = "Admin123!"
	DemoOwnerEmail    = "owner@fleet.local"
	DemoOwnerPassword = "Owner123!"
)

type Server struct {
	env      string
	prefix   string
	mux      *http.ServeMux
	routes   []string
	routeLog io.Writer
	logger   zerolog.Logger
	users    *UserStore
	tokens   *TokenManager
	data     *Dataset
	nowFunc  func() time.Time
	hits     map[string]int
	hitsLock sync.Mutex
	dataLock sync.RWMutex

	secret        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool
	bcryptCost    int
}

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) { s.env = strings.ToUpper(env) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRouteLog sets where the registered routes are listed in DEV.
func WithRouteLog(w io.Writer) Option {
	return func(s *Server) { s.routeLog = w }
}

func WithPrefix(prefix string) Option {
	return func(s *Server) { s.prefix = strings.TrimRight(prefix, "/") }
}

func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = secret }
}

func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithNowFunc sets the clock used to issue and verify tokens.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) { s.nowFunc = now }
}

// WithRefreshRotation makes the refresh endpoint return a new refresh token
// and blacklist the one presented.
func WithRefreshRotation(rotate bool) Option {
	return func(s *Server) { s.rotateRefresh = rotate }
}

func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

func New(opts ...Option) (*Server, error) {
	s := &Server{
		env:        "DEV",
		prefix:     DefaultPrefix,
		mux:        http.NewServeMux(),
		routeLog:   os.Stderr,
		logger:     log.Logger,
		nowFunc:    time.Now,
		hits:       make(map[string]int),
		secret:     "insecure-dev-secret",
		accessTTL:  5 * time.Minute,
		refreshTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.secret == "" {
		return nil, fmt.Errorf("[mockapi.New] signing secret is required")
	}

	s.users = NewUserStore(s.bcryptCost)
	s.tokens = NewTokenManager(NewHMACSigner(s.secret), s.accessTTL, s.refreshTTL, s.rotateRefresh, s.nowFunc)
	s.data = NewDataset(s.nowFunc())

	if err := s.seedUsers(); err != nil {
		return nil, fmt.Errorf("[mockapi.New] failed to seed users: %w", err)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

// NewFromConfig builds a server from the FLEET_MOCK_* settings.
func NewFromConfig(cfg config.Config, logger zerolog.Logger, opts ...Option) (*Server, error) {
	base := []Option{
		WithEnv(cfg.GetEnv()),
		WithLogger(logger),
		WithSecret(cfg.GetMockSecret()),
		WithTokenTTL(cfg.GetAccessTokenTTL(), cfg.GetRefreshTokenTTL()),
	}
	return New(append(base, opts...)...)
}

func (s *Server) seedUsers() error {
	seed := []struct{ username, email, password, role string }{
		{"admin", DemoAdminEmail, DemoAdminPassword, session.RoleSuperuser},
		{"owner", DemoOwnerEmail, DemoOwnerPassword, session.RoleFleetOwner},
	}
	for _, u := range seed {
		if _, err := s.users.Create(u.username, u.email, u.password, u.role); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) Users() *UserStore {
	return s.users
}

func (s *Server) Tokens() *TokenManager {
	return s.tokens
}

func (s *Server) Prefix() string {
	return s.prefix
}

// SetDataset replaces the served fleet data.
func (s *Server) SetDataset(d *Dataset) {
	s.dataLock.Lock()
	defer s.dataLock.Unlock()
	s.data = d
}

func (s *Server) dataset() *Dataset {
	s.dataLock.RLock()
	defer s.dataLock.RUnlock()
	return s.data
}

// Hits returns how many requests reached route, a path relative to the
// prefix such as "/auth/token/refresh/".
func (s *Server) Hits(route string) int {
	s.hitsLock.Lock()
	defer s.hitsLock.Unlock()
	return s.hits[s.prefix+route]
}

func (s *Server) ResetHits() {
	s.hitsLock.Lock()
	defer s.hitsLock.Unlock()
	s.hits = make(map[string]int)
}

func (s *Server) countHit(path string) {
	s.hitsLock.Lock()
	defer s.hitsLock.Unlock()
	s.hits[path]++
}

func (s *Server) logRoutes() {
	if s.env != "DEV" || s.routeLog == nil {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = gray
	}
	fmt.Fprintf(s.routeLog, "[%-19s] %s\n", color+paddedMethod+resetColor, path)
}
