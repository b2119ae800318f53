package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/go-fleet-client/apiclient"
	"github.com/jrsteele09/go-fleet-client/auth"
	"github.com/jrsteele09/go-fleet-client/fleet"
	"github.com/jrsteele09/go-fleet-client/internal/config"
	"github.com/jrsteele09/go-fleet-client/internal/logger"
	"github.com/jrsteele09/go-fleet-client/session"
	"github.com/jrsteele09/go-fleet-client/session/filestore"
	"github.com/jrsteele09/go-fleet-client/session/memstore"
	"github.com/jrsteele09/go-fleet-client/session/redisstore"
)

// app is everything a command needs, built once per invocation.
type app struct {
	client *apiclient.Client
	state  *auth.State
	auth   *auth.Service
	fleet  *fleet.Service
	close  func() error
}

type appOptions struct {
	baseURL string
	debug   bool
	stderr  io.Writer
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	log := logger.NewConsole(opts.stderr, "fleetctl", cfg.GetLogLevel())

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// The CLI has no screens; a forced logout tells the user how to log in again.
	nav := auth.NavigatorFunc(func(_ context.Context, route string) {
		fmt.Fprintf(opts.stderr, "Session expired (%s). Run `fleetctl login` to continue.\n", route)
	})
	state := auth.NewState(session.NewManager(store), nav,
		auth.WithLoginRoute(cfg.GetLoginRoute()),
		auth.WithStateLogger(log),
	)
	if err := state.Restore(ctx); err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	clientOpts := []apiclient.Option{
		apiclient.WithLogger(log),
		apiclient.WithSessionExpiredHandler(state),
		apiclient.WithTokenRefreshedHandler(state),
	}
	if opts.debug {
		clientOpts = append(clientOpts, apiclient.WithDebugLogging(true))
	}
	if opts.baseURL != "" {
		cfg = baseURLOverride{Config: cfg, baseURL: opts.baseURL}
	}
	client, err := apiclient.NewFromConfig(cfg, store, clientOpts...)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	return &app{
		client: client,
		state:  state,
		auth:   auth.NewService(client, state, auth.WithServiceLogger(log)),
		fleet:  fleet.NewService(client, fleet.WithLogger(log)),
		close:  closeStore,
	}, nil
}

// baseURLOverride applies the --base-url flag on top of the loaded config.
type baseURLOverride struct {
	config.Config
	baseURL string
}

func (b baseURLOverride) GetBaseURL() string {
	return strings.TrimRight(b.baseURL, "/")
}

// newSessionStore opens the credential store selected by FLEET_SESSION_STORE.
func newSessionStore(ctx context.Context, cfg config.Config) (session.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.GetSessionStore() {
	case config.StoreMemory:
		return memstore.New(), noop, nil
	case config.StoreFile:
		store, err := filestore.New(cfg.GetSessionFile())
		if err != nil {
			return nil, nil, fmt.Errorf("open session file: %w", err)
		}
		return store, noop, nil
	case config.StoreRedis:
		store, client, err := redisstore.NewFromURL(ctx, cfg.GetRedisURL(), redisstore.WithKeyPrefix(cfg.GetRedisKeyPrefix()))
		if err != nil {
			return nil, nil, fmt.Errorf("connect session redis: %w", err)
		}
		return store, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store %q", cfg.GetSessionStore())
	}
}
