package auth

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-fleet-client/session"
)

// ValidateCredentials rejects a login before it reaches the backend.
func ValidateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// ValidateEmail is a format sanity check, not an RFC 5322 parser.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || !strings.Contains(email[at:], ".") || strings.HasSuffix(email, ".") {
		return fmt.Errorf("%w: invalid email format", ErrInvalidRequest)
	}
	return nil
}

// ValidateRegistration checks the fields the backend requires.
func ValidateRegistration(r RegisterRequest) error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidRequest)
	}
	return nil
}

// ValidateAccessToken checks that token is a decodable JWT and, when it
// carries a token_type claim, that it is an access token. The signature is
// not checked.
func ValidateAccessToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("access token is required")
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("invalid token format: must be a valid JWT")
	}
	for i, part := range parts {
		if len(part) == 0 {
			return fmt.Errorf("invalid token format: part %d is empty", i+1)
		}
	}

	claims, err := session.ParseClaims(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != "" && claims.TokenType != "access" {
		return fmt.Errorf("%w: token_type is %q", ErrInvalidToken, claims.TokenType)
	}
	return nil
}
