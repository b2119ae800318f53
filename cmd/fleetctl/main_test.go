package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-fleet-client/apiclient"
	"github.com/jrsteele09/go-fleet-client/fleet"
	"github.com/jrsteele09/go-fleet-client/mockapi"
	"github.com/jrsteele09/go-fleet-client/session"
)

func setupBackend(t *testing.T) (*mockapi.Server, string) {
	t.Helper()
	api, err := mockapi.New(
		mockapi.WithEnv("TEST"),
		mockapi.WithLogger(zerolog.Nop()),
		mockapi.WithBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	return api, ts.URL + mockapi.DefaultPrefix
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestSessionSurvivesAcrossInvocations(t *testing.T) {
	api, baseURL := setupBackend(t)
	t.Setenv("FLEET_SESSION_STORE", "file")
	t.Setenv("FLEET_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))

	out, err := execute(t, "login", "--base-url", baseURL, "-e", mockapi.DemoOwnerEmail, "-p", mockapi.DemoOwnerPassword)
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as owner@fleet.local (fleet_owner)")

	out, err = execute(t, "whoami", "--base-url", baseURL)
	require.NoError(t, err)
	var user session.User
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	require.Equal(t, mockapi.DemoOwnerEmail, user.Email)

	out, err = execute(t, "whoami", "--offline", "--base-url", baseURL)
	require.NoError(t, err)
	var offline struct {
		User           session.User `json:"user"`
		TokenExpiresAt *time.Time   `json:"access_token_expires_at"`
		TokenExpired   bool         `json:"access_token_expired"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &offline))
	require.Equal(t, mockapi.DemoOwnerEmail, offline.User.Email)
	require.NotNil(t, offline.TokenExpiresAt)
	require.True(t, offline.TokenExpiresAt.After(time.Now()))
	require.False(t, offline.TokenExpired)

	out, err = execute(t, "dashboard", "--base-url", baseURL)
	require.NoError(t, err)
	var stats fleet.DashboardStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Len(t, stats.FleetStats, 6)

	out, err = execute(t, "get", "/vehicle-selection/", "-q", "fleet_type=Eka 7", "--base-url", baseURL)
	require.NoError(t, err)
	require.Contains(t, out, `"fleet_name":"Eka 7"`)

	out, err = execute(t, "logout", "--base-url", baseURL)
	require.NoError(t, err)
	require.Contains(t, out, "Logged out")
	require.Equal(t, 1, api.Hits(mockapi.RouteLogout))

	_, err = execute(t, "whoami", "--offline", "--base-url", baseURL)
	require.Error(t, err)
}

func TestRedisSessionStore(t *testing.T) {
	_, baseURL := setupBackend(t)
	mr := miniredis.RunT(t)
	t.Setenv("FLEET_SESSION_STORE", "redis")
	t.Setenv("FLEET_REDIS_URL", "redis://"+mr.Addr())

	_, err := execute(t, "login", "--base-url", baseURL, "-e", mockapi.DemoAdminEmail, "-p", mockapi.DemoAdminPassword)
	require.NoError(t, err)
	require.True(t, mr.Exists("fleet:session:"+session.KeyAccessToken))

	out, err := execute(t, "users", "--base-url", baseURL)
	require.NoError(t, err)
	var users []fleet.User
	require.NoError(t, json.Unmarshal([]byte(out), &users))
	require.Len(t, users, 2)
}

func TestGetReportsErrorStatus(t *testing.T) {
	_, baseURL := setupBackend(t)
	t.Setenv("FLEET_SESSION_STORE", "memory")
	t.Setenv("FLEET_PASSWORD", mockapi.DemoOwnerPassword)

	// Memory sessions do not outlive the command, so the request is anonymous.
	_, err := execute(t, "get", "/dashboard-stats/", "--base-url", baseURL)
	require.Error(t, err)

	_, err = execute(t, "login", "--base-url", baseURL, "-e", mockapi.DemoOwnerEmail)
	require.NoError(t, err)
}

func TestGetRefusesOtherOrigins(t *testing.T) {
	api, baseURL := setupBackend(t)
	t.Setenv("FLEET_SESSION_STORE", "file")
	t.Setenv("FLEET_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))

	_, err := execute(t, "login", "--base-url", baseURL, "-e", mockapi.DemoOwnerEmail, "-p", mockapi.DemoOwnerPassword)
	require.NoError(t, err)

	_, err = execute(t, "get", "http://attacker.invalid/collect", "--base-url", baseURL)
	require.ErrorIs(t, err, apiclient.ErrForeignOrigin)
	require.Zero(t, api.Hits(mockapi.RouteRefresh))
}

func TestHealthCommand(t *testing.T) {
	_, baseURL := setupBackend(t)
	t.Setenv("FLEET_SESSION_STORE", "memory")

	out, err := execute(t, "health", "--wait", "--timeout", "5s", "--base-url", baseURL)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, out)
}

func TestLoginRequiresCredentials(t *testing.T) {
	_, baseURL := setupBackend(t)
	t.Setenv("FLEET_SESSION_STORE", "memory")
	t.Setenv("FLEET_PASSWORD", "")

	_, err := execute(t, "login", "--base-url", baseURL, "-e", mockapi.DemoOwnerEmail)
	require.ErrorContains(t, err, "email and password are required")
}

func TestVersion(t *testing.T) {
	t.Setenv("FLEET_APP_NAME", "fleet")
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "fleetctl dev")
}

func TestUnsupportedStore(t *testing.T) {
	t.Setenv("FLEET_SESSION_STORE", "etcd")
	_, err := execute(t, "dashboard")
	require.ErrorContains(t, err, "SESSION_STORE")
}
