package mockapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/mail"
	"strings"

	apperrors "github.com/jrsteele09/go-fleet-client/internal/errors"
	"github.com/jrsteele09/go-fleet-client/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func tokenNotValid(msg string) map[string]string {
	return map[string]string{"detail": msg, "code": "token_not_valid"}
}

func fieldErrors(field, msg string) map[string][]string {
	return map[string][]string{field: {msg}}
}

// decodeBody reads a JSON object. An empty body decodes as an empty object.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !apperrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User    session.User `json:"user"`
	Refresh string       `json:"refresh"`
	Access  string       `json:"access"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, detail("JSON parse error"))
			return
		}

		user, err := s.users.Authenticate(req.Email, req.Password)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("Invalid Credentials"))
			return
		}

		access, refresh, err := s.tokens.IssuePair(user.ID)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to issue token pair")
			writeJSON(w, http.StatusInternalServerError, detail("A server error occurred."))
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{User: user.Public(), Refresh: refresh, Access: access})
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		_ = decodeBody(r, &req)
		if req.Refresh == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("Refresh token is required."))
			return
		}
		if err := s.tokens.Revoke(req.Refresh); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("Token is invalid or expired."))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, detail("JSON parse error"))
			return
		}
		if req.Refresh == "" {
			writeJSON(w, http.StatusBadRequest, fieldErrors("refresh", "This field is required."))
			return
		}

		access, rotated, err := s.tokens.Refresh(req.Refresh)
		if err != nil {
			s.logger.Debug().Err(err).Msg("refresh token rejected")
			writeJSON(w, http.StatusUnauthorized, tokenNotValid("Token is invalid or expired"))
			return
		}

		resp := map[string]string{"access": access}
		if rotated != "" {
			resp["refresh"] = rotated
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type registerResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

var validRoles = map[string]bool{
	session.RoleSuperuser:  true,
	session.RoleFleetOwner: true,
	session.RoleSales:      true,
	session.RoleService:    true,
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, detail("JSON parse error"))
			return
		}
		if req.Role == "" {
			req.Role = session.RoleFleetOwner
		}

		switch {
		case strings.TrimSpace(req.Username) == "":
			writeJSON(w, http.StatusBadRequest, fieldErrors("username", "This field is required."))
			return
		case strings.TrimSpace(req.Email) == "":
			writeJSON(w, http.StatusBadRequest, fieldErrors("email", "This field is required."))
			return
		case !validEmail(req.Email):
			writeJSON(w, http.StatusBadRequest, fieldErrors("email", "Enter a valid email address."))
			return
		case !validRoles[req.Role]:
			writeJSON(w, http.StatusBadRequest, fieldErrors("role", "\""+req.Role+"\" is not a valid choice."))
			return
		}
		if err := ValidatePasswordStrength(req.Password); err != nil {
			writeJSON(w, http.StatusBadRequest, fieldErrors("password", err.Error()))
			return
		}

		user, err := s.users.Create(req.Username, req.Email, req.Password, req.Role)
		if apperrors.Is(err, apperrors.ErrUserExists) {
			writeJSON(w, http.StatusBadRequest, fieldErrors("email", "user with this email already exists."))
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to create user")
			writeJSON(w, http.StatusInternalServerError, detail("A server error occurred."))
			return
		}

		writeJSON(w, http.StatusCreated, registerResponse{ID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role})
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == strings.TrimSpace(email)
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		writeJSON(w, http.StatusOK, user.Public())
	}
}

func (s *Server) UsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users := s.users.List()
		out := make([]session.User, 0, len(users))
		for _, u := range users {
			out = append(out, u.Public())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
