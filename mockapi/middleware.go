package mockapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

type contextKey string

// ContextKeyUser stores the authenticated *User.
const ContextKeyUser contextKey = "user"

// UserFromContext returns the user set by RequireAuth.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextKeyUser).(*User)
	return u, ok
}

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware runs on every route before any auth check.
func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chained := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.CountMiddleware,
	}
	return append(chained, mw...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, detail("A server error occurred."))
			}
		}()
		next(w, r)
	}
}

func (s *Server) CountMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.countHit(r.URL.Path)
		next(w, r)
	}
}

// RequireAuth validates the Bearer access token and stores its user in the
// request context.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, detail("Authentication credentials were not provided."))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			writeJSON(w, http.StatusUnauthorized, tokenNotValid("Authorization header must contain two space-delimited values"))
			return
		}

		claims, err := s.tokens.Verify(parts[1], TokenTypeAccess)
		if err != nil {
			s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("access token rejected")
			writeJSON(w, http.StatusUnauthorized, tokenNotValid("Given token not valid for any token type"))
			return
		}

		user, err := s.users.GetByID(claims.UserID)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, tokenNotValid("User not found"))
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyUser, user)))
	}
}

// RequireAdmin must run after RequireAuth.
func (s *Server) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !user.IsStaff {
			writeJSON(w, http.StatusForbidden, detail("You do not have permission to perform this action."))
			return
		}
		next(w, r)
	}
}
