package apiclient_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// backend is a scripted stand-in for the fleet API. Resource paths under /api/
// accept any token in valid; the refresh endpoint swaps refreshToken for
// nextAccess.
type backend struct {
	srv *httptest.Server

	mu            sync.Mutex
	valid         map[string]bool
	refreshToken  string
	nextAccess    string
	rotateRefresh string
	refreshStatus int
	refreshRaw    string
	refreshAuth   []string
	rejectAll     bool
	hits          map[string][]string
	onResource    func(r *http.Request)
	onRefresh     func()

	refreshCalls atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		valid:        map[string]bool{},
		hits:         map[string][]string{},
		refreshToken: "R1",
		nextAccess:   "A2",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token/refresh/", b.handleRefresh)
	mux.HandleFunc("GET /api/health/", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/api/", b.handleResource)

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) baseURL() string {
	return b.srv.URL + "/api"
}

func (b *backend) markValid(tokens ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tok := range tokens {
		b.valid[tok] = true
	}
}

// with mutates the script under the backend's lock.
func (b *backend) with(f func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f()
}

func (b *backend) refreshAuthHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.refreshAuth...)
}

func (b *backend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hits[r.URL.Path] = append(b.hits[r.URL.Path], r.Header.Get("Authorization"))
}

func (b *backend) authHeaders(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.hits["/api"+path]...)
}

func (b *backend) handleResource(w http.ResponseWriter, r *http.Request) {
	b.record(r)
	b.mu.Lock()
	hook := b.onResource
	b.mu.Unlock()
	if hook != nil {
		hook(r)
	}

	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	b.mu.Lock()
	ok := auth != "" && b.valid[token] && !b.rejectAll
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Given token not valid for any token type",
			"code":   "token_not_valid",
		})
		return
	}

	switch r.URL.Path {
	case "/api/missing/":
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No vehicle summary data found."})
	case "/api/boom/":
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "server error"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"path":   r.URL.Path,
			"token":  token,
			"query":  r.URL.RawQuery,
			"method": r.Method,
		})
	}
}

func (b *backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	b.mu.Lock()
	b.refreshAuth = append(b.refreshAuth, r.Header.Get("Authorization"))
	hook, status, raw := b.onRefresh, b.refreshStatus, b.refreshRaw
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	if raw != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
		return
	}

	var body struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if body.Refresh != b.refreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	b.valid[b.nextAccess] = true
	resp := map[string]string{"access": b.nextAccess}
	if b.rotateRefresh != "" {
		resp["refresh"] = b.rotateRefresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
