package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-fleet-client/internal/utils"
)

// Claims is the subset of the backend's JWT claims the client reads.
type Claims struct {
	TokenType string
	UserID    string
	JTI       string
	ExpiresAt time.Time
}

// ParseClaims decodes a JWT without verifying its signature. The client cannot
// verify tokens; the backend does that on every request.
func ParseClaims(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, errors.Wrap(err, "session.ParseClaims")
	}

	c := Claims{
		TokenType: utils.ClaimString(claims["token_type"]),
		UserID:    utils.ClaimString(claims["user_id"]),
		JTI:       utils.ClaimString(claims["jti"]),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
