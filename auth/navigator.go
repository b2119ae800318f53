package auth

import (
	"context"
	"sync"
)

// LoginRoute is where users are sent when their session ends.
const LoginRoute = "/login"

// Navigator moves the user to another screen.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

type NavigatorFunc func(ctx context.Context, route string)

func (f NavigatorFunc) Navigate(ctx context.Context, route string) { f(ctx, route) }

// History is a Navigator that remembers every route it was sent to.
type History struct {
	mu     sync.RWMutex
	routes []string
}

var _ Navigator = (*History)(nil)

func (h *History) Navigate(_ context.Context, route string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes = append(h.routes, route)
}

// Current returns the last route, or "" before any navigation.
func (h *History) Current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.routes) == 0 {
		return ""
	}
	return h.routes[len(h.routes)-1]
}

func (h *History) Routes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.routes...)
}
