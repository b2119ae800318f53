package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-fleet-client/apiclient"
	"github.com/jrsteele09/go-fleet-client/session"
	"github.com/jrsteele09/go-fleet-client/session/memstore"
)

type echo struct {
	Path   string `json:"path"`
	Token  string `json:"token"`
	Query  string `json:"query"`
	Method string `json:"method"`
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type expiryRecorder struct {
	mu     sync.Mutex
	causes []error
}

func (e *expiryRecorder) SessionExpired(_ context.Context, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.causes = append(e.causes, cause)
}

func (e *expiryRecorder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.causes)
}

func setupTestFixture(t *testing.T, b *backend, opts ...apiclient.Option) (*apiclient.Client, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	opts = append([]apiclient.Option{apiclient.WithLogger(zerolog.Nop())}, opts...)
	c, err := apiclient.New(b.baseURL(), store, opts...)
	require.NoError(t, err)
	return c, store
}

func seed(t *testing.T, store session.Store, access, refresh string) {
	t.Helper()
	ctx := context.Background()
	if access != "" {
		require.NoError(t, store.Set(ctx, session.KeyAccessToken, access))
	}
	if refresh != "" {
		require.NoError(t, store.Set(ctx, session.KeyRefreshToken, refresh))
	}
}

func stored(t *testing.T, store session.Store, key string) string {
	t.Helper()
	v, _, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return v
}

func TestNewValidation(t *testing.T) {
	store := memstore.New()

	_, err := apiclient.New("", store)
	require.Error(t, err)

	_, err = apiclient.New("not a url", store)
	require.Error(t, err)

	_, err = apiclient.New("http://localhost:8000/api", nil)
	require.Error(t, err)

	_, err = apiclient.New("http://localhost:8000/api", store, apiclient.WithHTTPTimeout(0))
	require.Error(t, err)

	c, err := apiclient.New("http://localhost:8000/api/", store)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000/api", c.BaseURL())
}

func TestBearerHeaderFromStore(t *testing.T) {
	b := newBackend(t)
	b.markValid("A1")
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	var got echo
	require.NoError(t, c.GetJSON(context.Background(), "/dashboard-stats/", nil, &got))
	require.Equal(t, "A1", got.Token)
	require.Equal(t, []string{"Bearer A1"}, b.authHeaders("/dashboard-stats/"))
}

func TestNoTokenSendsNoAuthorization(t *testing.T) {
	b := newBackend(t)
	c, _ := setupTestFixture(t, b, apiclient.WithDefaultHeader("Authorization", "Bearer stale"))

	resp, err := c.Get(context.Background(), "/health/", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{""}, b.authHeaders("/health/"))
}

func TestStoredTokenIsReReadPerRequest(t *testing.T) {
	b := newBackend(t)
	b.markValid("A1", "B1")
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "")

	_, err := c.Get(context.Background(), "/vehicle-selection/", nil)
	require.NoError(t, err)
	seed(t, store, "B1", "")
	_, err = c.Get(context.Background(), "/vehicle-selection/", nil)
	require.NoError(t, err)

	require.Equal(t, []string{"Bearer A1", "Bearer B1"}, b.authHeaders("/vehicle-selection/"))
}

func TestRefreshAndReplay(t *testing.T) {
	b := newBackend(t)
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	resp, err := c.Get(context.Background(), "/dashboard-stats/", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got echo
	require.NoError(t, resp.DecodeJSON(&got))
	require.Equal(t, "A2", got.Token)

	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.Equal(t, []string{""}, b.refreshAuthHeaders())
	require.Equal(t, "A2", stored(t, store, session.KeyAccessToken))
	require.Equal(t, "R1", stored(t, store, session.KeyRefreshToken))
	require.Equal(t, []string{"Bearer A1", "Bearer A2"}, b.authHeaders("/dashboard-stats/"))
	require.Equal(t, "Bearer A2", c.DefaultHeaders().Get("Authorization"))
}

func TestRefreshPersistsRotatedRefreshToken(t *testing.T) {
	b := newBackend(t)
	b.with(func() { b.rotateRefresh = "R2" })
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	resp, err := c.Get(context.Background(), "/reports/", nil)
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Equal(t, "R2", stored(t, store, session.KeyRefreshToken))
}

func TestReplayPreservesRequest(t *testing.T) {
	b := newBackend(t)
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	req, err := apiclient.NewJSONRequest(http.MethodPost, "/reports/", map[string]string{"report_type": "daily"})
	require.NoError(t, err)
	req.Query = url.Values{"page": []string{"2"}}

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)

	var got echo
	require.NoError(t, resp.DecodeJSON(&got))
	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "page=2", got.Query)
	require.Nil(t, req.Header.Values("Authorization"))
}

func TestRefreshFailureEndsSession(t *testing.T) {
	b := newBackend(t)
	b.with(func() { b.refreshStatus = http.StatusUnauthorized })
	rec := &expiryRecorder{}
	c, store := setupTestFixture(t, b, apiclient.WithSessionExpiredHandler(rec))
	seed(t, store, "A1", "R1")

	resp, err := c.Get(context.Background(), "/dashboard-stats/", nil)
	require.Nil(t, resp)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.True(t, apiclient.IsSessionExpired(err))
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))

	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.Len(t, b.authHeaders("/dashboard-stats/"), 1)
	require.Equal(t, 1, rec.count())
}

func TestRefreshFailureDefaultHandlerClearsStore(t *testing.T) {
	b := newBackend(t)
	b.with(func() { b.refreshStatus = http.StatusBadRequest })
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")
	require.NoError(t, c.Sessions().SetUser(context.Background(), session.User{ID: 1}))

	_, err := c.Get(context.Background(), "/dashboard-stats/", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.Equal(t, 0, store.Len())
}

func TestMissingRefreshToken(t *testing.T) {
	b := newBackend(t)
	rec := &expiryRecorder{}
	c, store := setupTestFixture(t, b, apiclient.WithSessionExpiredHandler(rec))
	seed(t, store, "A1", "")

	_, err := c.Get(context.Background(), "/dashboard-stats/", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.ErrorIs(t, err, apiclient.ErrNoRefreshToken)
	require.EqualValues(t, 0, b.refreshCalls.Load())
	require.Equal(t, 1, rec.count())
}

func TestUndecodableRefreshResponse(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":  "<html>",
		"no access": `{"refresh":"R9"}`,
	} {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			b.with(func() { b.refreshRaw = raw })
			c, store := setupTestFixture(t, b)
			seed(t, store, "A1", "R1")

			_, err := c.Get(context.Background(), "/dashboard-stats/", nil)
			require.ErrorIs(t, err, apiclient.ErrSessionExpired)
			require.Len(t, b.authHeaders("/dashboard-stats/"), 1)
		})
	}
}

func TestRetried401IsReturned(t *testing.T) {
	b := newBackend(t)
	b.with(func() { b.rejectAll = true })
	rec := &expiryRecorder{}
	c, store := setupTestFixture(t, b, apiclient.WithSessionExpiredHandler(rec))
	seed(t, store, "A1", "R1")

	resp, err := c.Get(context.Background(), "/dashboard-stats/", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.Equal(t, []string{"Bearer A1", "Bearer A2"}, b.authHeaders("/dashboard-stats/"))
	require.Equal(t, 0, rec.count())

	var he *apiclient.HTTPError
	require.ErrorAs(t, resp.DecodeJSON(&struct{}{}), &he)
	require.Equal(t, "Given token not valid for any token type", he.Message())
}

func TestNoRefreshRequest(t *testing.T) {
	b := newBackend(t)
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	resp, err := c.Do(context.Background(), &apiclient.Request{Method: http.MethodGet, Path: "/dashboard-stats/", NoRefresh: true})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, b.refreshCalls.Load())
	require.Equal(t, "A1", stored(t, store, session.KeyAccessToken))
}

func TestApplicationErrorsPassThrough(t *testing.T) {
	b := newBackend(t)
	b.markValid("A1")
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	resp, err := c.Get(context.Background(), "/missing/", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	err = resp.DecodeJSON(&struct{}{})
	var he *apiclient.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, "No vehicle summary data found.", he.Message())
	require.Contains(t, he.Error(), "GET /missing/: status 404")

	resp, err = c.Get(context.Background(), "/boom/", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.EqualValues(t, 0, b.refreshCalls.Load())
}

func TestNetworkErrorReturnedUntouched(t *testing.T) {
	boom := errors.New("connection refused")
	var calls atomic.Int32
	hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, boom
	})}
	store := memstore.New()
	seed(t, store, "A1", "R1")
	c, err := apiclient.New("http://fleet.invalid/api", store, apiclient.WithHTTPClient(hc), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/dashboard-stats/", nil)
	require.ErrorIs(t, err, boom)
	require.False(t, apiclient.IsSessionExpired(err))
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, "A1", stored(t, store, session.KeyAccessToken))
}

func TestRepeatedRequestsAreIndependent(t *testing.T) {
	b := newBackend(t)
	b.markValid("A1")
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	for i := 0; i < 2; i++ {
		resp, err := c.Get(context.Background(), "/trails/", url.Values{"fetch_filters": []string{"true"}})
		require.NoError(t, err)
		require.True(t, resp.OK())
	}
	require.Equal(t, []string{"Bearer A1", "Bearer A1"}, b.authHeaders("/trails/"))
}

func TestStaleTokenSkipsRefresh(t *testing.T) {
	b := newBackend(t)
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	// Another flow refreshes while this request is in flight.
	b.with(func() {
		b.onResource = func(r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer A1" {
				b.markValid("A3")
				_ = store.Set(context.Background(), session.KeyAccessToken, "A3")
			}
		}
	})

	var got echo
	require.NoError(t, c.GetJSON(context.Background(), "/dashboard-stats/", nil, &got))
	require.Equal(t, "A3", got.Token)
	require.EqualValues(t, 0, b.refreshCalls.Load())
}

// holdUntil blocks requests carrying stale until n of them have arrived, so
// all n receive their 401 together.
func holdUntil(b *backend, n int32, stale string) {
	var arrived atomic.Int32
	release := make(chan struct{})
	b.with(func() {
		b.onResource = func(r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+stale {
				return
			}
			if arrived.Add(1) == n {
				close(release)
			}
			select {
			case <-release:
			case <-time.After(5 * time.Second):
			}
		}
	})
}

func runConcurrent(t *testing.T, c *apiclient.Client, n int) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got echo
			if err := c.GetJSON(context.Background(), "/dashboard-stats/", nil, &got); err != nil {
				errs <- err
				return
			}
			if got.Token != "A2" {
				errs <- errors.New("replayed with " + got.Token)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const n = 10
	b := newBackend(t)
	holdUntil(b, n, "A1")
	b.with(func() { b.onRefresh = func() { time.Sleep(100 * time.Millisecond) } })
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "R1")

	runConcurrent(t, c, n)

	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.Len(t, b.authHeaders("/dashboard-stats/"), 2*n)
}

func TestPerRequestRefresh(t *testing.T) {
	const n = 4
	b := newBackend(t)
	holdUntil(b, n, "A1")
	c, store := setupTestFixture(t, b, apiclient.WithPerRequestRefresh())
	seed(t, store, "A1", "R1")

	runConcurrent(t, c, n)

	require.EqualValues(t, n, b.refreshCalls.Load())
}

func TestCanceledWaiterDoesNotAbortSharedRefresh(t *testing.T) {
	b := newBackend(t)
	started := make(chan struct{})
	release := make(chan struct{})
	b.with(func() {
		b.onRefresh = func() {
			close(started)
			<-release
		}
	})
	rec := &expiryRecorder{}
	c, store := setupTestFixture(t, b, apiclient.WithSessionExpiredHandler(rec))
	seed(t, store, "A1", "R1")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "/dashboard-stats/", nil)
		errCh <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	close(release)

	require.Eventually(t, func() bool {
		v, _, _ := store.Get(context.Background(), session.KeyAccessToken)
		return v == "A2"
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, rec.count())
}

func TestRequestIDHeader(t *testing.T) {
	var ids []string
	var mu sync.Mutex
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-ID"))
		mu.Unlock()
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: http.Header{}, Request: r}, nil
	})}
	c, err := apiclient.New("http://fleet.invalid/api", memstore.New(), apiclient.WithHTTPClient(hc), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/health/", nil)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), &apiclient.Request{Path: "/health/", Header: http.Header{"X-Request-Id": []string{"fixed"}}})
	require.NoError(t, err)

	require.Len(t, ids, 2)
	require.Len(t, ids[0], 36)
	require.Equal(t, "fixed", ids[1])
}

func TestAbsolutePathAndQuery(t *testing.T) {
	b := newBackend(t)
	b.markValid("A1")
	c, store := setupTestFixture(t, b)
	seed(t, store, "A1", "")

	resp, err := c.Get(context.Background(), b.srv.URL+"/api/reports/?page=1", url.Values{"page_size": []string{"5"}})
	require.NoError(t, err)

	var got echo
	require.NoError(t, json.Unmarshal(resp.Body, &got))
	require.Equal(t, "page=1&page_size=5", got.Query)
}

func TestForeignOriginIsRejected(t *testing.T) {
	b := newBackend(t)
	foreign := newBackend(t)
	rec := &expiryRecorder{}
	c, store := setupTestFixture(t, b, apiclient.WithSessionExpiredHandler(rec))
	seed(t, store, "A1", "R1")

	for _, target := range []string{
		foreign.srv.URL + "/api/steal/",
		strings.Replace(b.srv.URL, "http://", "https://", 1) + "/api/dashboard-stats/",
	} {
		resp, err := c.Get(context.Background(), target, nil)
		require.Nil(t, resp)
		require.ErrorIs(t, err, apiclient.ErrForeignOrigin)
		require.False(t, apiclient.IsSessionExpired(err))
	}

	require.Empty(t, foreign.authHeaders("/steal/"))
	require.EqualValues(t, 0, foreign.refreshCalls.Load())
	require.EqualValues(t, 0, b.refreshCalls.Load())
	require.Equal(t, 0, rec.count())
	require.Equal(t, "A1", stored(t, store, session.KeyAccessToken))
}

func TestRefreshTransportFailureEndsSession(t *testing.T) {
	dialErr := errors.New("dial tcp: connection refused")
	var resourceCalls atomic.Int32
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.URL.Path, "/auth/token/refresh/") {
			return nil, dialErr
		}
		resourceCalls.Add(1)
		return &http.Response{StatusCode: http.StatusUnauthorized, Body: http.NoBody, Header: http.Header{}, Request: r}, nil
	})}
	store := memstore.New()
	seed(t, store, "A1", "R1")
	rec := &expiryRecorder{}
	c, err := apiclient.New("http://fleet.invalid/api", store,
		apiclient.WithHTTPClient(hc),
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithSessionExpiredHandler(rec),
	)
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "/dashboard-stats/", nil)
	require.Nil(t, resp)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.ErrorIs(t, err, dialErr)
	require.EqualValues(t, 1, resourceCalls.Load())
	require.Equal(t, 1, rec.count())
}

func TestLate401AfterFailedRefreshDoesNotEndSessionTwice(t *testing.T) {
	b := newBackend(t)
	b.with(func() { b.refreshStatus = http.StatusUnauthorized })

	secondSent := make(chan struct{})
	release := make(chan struct{})
	b.with(func() {
		b.onResource = func(r *http.Request) {
			if r.Header.Get("X-Call") == "second" {
				close(secondSent)
				<-release
			}
		}
	})

	rec := &expiryRecorder{}
	store := memstore.New()
	seed(t, store, "A1", "R1")
	clearing := apiclient.SessionExpiredFunc(func(ctx context.Context, cause error) {
		rec.SessionExpired(ctx, cause)
		require.NoError(t, store.Clear(ctx, session.Keys...))
	})
	c, err := apiclient.New(b.baseURL(), store, apiclient.WithLogger(zerolog.Nop()), apiclient.WithSessionExpiredHandler(clearing))
	require.NoError(t, err)

	secondErr := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), &apiclient.Request{
			Path:   "/vehicle-selection/",
			Header: http.Header{"X-Call": []string{"second"}},
		})
		secondErr <- err
	}()
	<-secondSent

	_, err = c.Get(context.Background(), "/dashboard-stats/", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.Equal(t, 1, rec.count())

	close(release)
	err = <-secondErr
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.ErrorIs(t, err, apiclient.ErrNoRefreshToken)

	require.Equal(t, 1, rec.count())
	require.EqualValues(t, 1, b.refreshCalls.Load())
}

func TestAnonymous401StillEndsSession(t *testing.T) {
	b := newBackend(t)
	rec := &expiryRecorder{}
	c, _ := setupTestFixture(t, b, apiclient.WithSessionExpiredHandler(rec))

	_, err := c.Get(context.Background(), "/dashboard-stats/", nil)
	require.ErrorIs(t, err, apiclient.ErrNoRefreshToken)
	require.Equal(t, 1, rec.count())
}
