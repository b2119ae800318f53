package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

const refreshKey = "refresh"

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// refresh obtains a new access token after stale was rejected. With
// coalescing on, concurrent callers share one refresh call, and a caller whose
// stale token was already replaced returns at once so it can replay.
func (c *Client) refresh(ctx context.Context, stale string) error {
	if !c.coalesce {
		return c.refreshOnce(ctx)
	}

	current, err := c.sessions.AccessToken(ctx)
	if err == nil && current != "" && current != stale {
		tokenRefreshTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if err == nil && current == "" && stale != "" && c.sessionEnded(ctx) {
		// An earlier shared refresh already failed and ended the session.
		return fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
	}

	// The shared refresh must not die with whichever caller started it.
	ch := c.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return nil, c.refreshOnce(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) sessionEnded(ctx context.Context) bool {
	rt, err := c.sessions.RefreshToken(ctx)
	return err == nil && rt == ""
}

// refreshOnce performs a single refresh call. On failure it ends the session
// and returns an error wrapping ErrSessionExpired.
func (c *Client) refreshOnce(ctx context.Context) error {
	access, err := c.requestNewToken(ctx)
	if err != nil {
		tokenRefreshTotal.WithLabelValues("failure").Inc()
		expired := fmt.Errorf("%w: %w", ErrSessionExpired, err)
		c.logger.Warn().Err(err).Msg("token refresh failed, ending session")
		c.onExpired.SessionExpired(ctx, expired)
		return expired
	}

	tokenRefreshTotal.WithLabelValues("success").Inc()
	c.setDefaultHeader("Authorization", "Bearer "+access)
	if c.onRefreshed != nil {
		c.onRefreshed.TokenRefreshed(ctx, access)
	}
	c.logger.Debug().Msg("access token refreshed")
	return nil
}

// requestNewToken posts the stored refresh token to the refresh endpoint and
// persists the result. It bypasses send: no bearer header is attached and a
// 401 here is a plain failure.
func (c *Client) requestNewToken(ctx context.Context) (string, error) {
	rt, err := c.sessions.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if rt == "" {
		return "", ErrNoRefreshToken
	}

	body, err := json.Marshal(refreshRequest{Refresh: rt})
	if err != nil {
		return "", errors.Wrap(err, "Client.requestNewToken marshal")
	}
	target, err := c.resolve(c.refreshPath, nil)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "Client.requestNewToken build")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "Client.requestNewToken send")
	}
	defer httpResp.Body.Close()

	b, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", errors.Wrap(err, "Client.requestNewToken read")
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", &HTTPError{Method: http.MethodPost, Path: c.refreshPath, StatusCode: httpResp.StatusCode, Body: b}
	}

	var out refreshResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return "", errors.Wrap(err, "Client.requestNewToken decode")
	}
	if out.Access == "" {
		return "", errors.New("refresh response has no access token")
	}

	if err := c.sessions.SetAccessToken(ctx, out.Access); err != nil {
		return "", err
	}
	if out.Refresh != "" {
		if err := c.sessions.SetRefreshToken(ctx, out.Refresh); err != nil {
			return "", err
		}
	}
	return out.Access, nil
}
