package mockapi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-fleet-client/internal/errors"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Signer signs and verifies the backend's JWTs.
type Signer interface {
	Sign(claims jwt.MapClaims) (string, error)
	GetVerificationKey(token *jwt.Token) (any, error)
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using symmetric HMAC-SHA256.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// TokenClaims are the verified claims of an access or refresh token.
type TokenClaims struct {
	TokenType string
	UserID    int
	JTI       string
	ExpiresAt time.Time
}

// TokenManager issues access/refresh pairs, refreshes access tokens and
// blacklists refresh tokens on logout.
type TokenManager struct {
	signer        Signer
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool
	blacklist     *Blacklist
	nowFunc       func() time.Time
}

func NewTokenManager(signer Signer, accessTTL, refreshTTL time.Duration, rotateRefresh bool, nowFunc func() time.Time) *TokenManager {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &TokenManager{
		signer:        signer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		rotateRefresh: rotateRefresh,
		blacklist:     NewBlacklist(),
		nowFunc:       nowFunc,
	}
}

func (m *TokenManager) Blacklist() *Blacklist {
	return m.blacklist
}

// IssuePair returns a fresh access token and refresh token for userID.
func (m *TokenManager) IssuePair(userID int) (access, refresh string, err error) {
	access, err = m.issue(userID, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = m.issue(userID, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (m *TokenManager) issue(userID int, tokenType string, ttl time.Duration) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"token_type": tokenType,
		"user_id":    userID,
		"jti":        uuid.New().String(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrapf(err, "TokenManager.issue %s", tokenType)
	}
	return signed, nil
}

// Verify checks the signature, expiry and type of raw. Refresh tokens are
// also checked against the blacklist.
func (m *TokenManager) Verify(raw, tokenType string) (*TokenClaims, error) {
	parsed, err := jwt.Parse(raw, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	claims := &TokenClaims{}
	claims.TokenType, _ = mc["token_type"].(string)
	claims.JTI, _ = mc["jti"].(string)
	if id, ok := mc["user_id"].(float64); ok {
		claims.UserID = int(id)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if claims.TokenType != tokenType {
		return nil, apperrors.ErrWrongTokenType
	}
	if claims.UserID == 0 || claims.JTI == "" {
		return nil, apperrors.ErrInvalidToken
	}
	if tokenType == TokenTypeRefresh && m.blacklist.IsRevoked(claims.JTI) {
		return nil, apperrors.ErrTokenRevoked
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new access token. When rotation is
// enabled a new refresh token is returned and the old one is blacklisted;
// otherwise newRefresh is empty.
func (m *TokenManager) Refresh(raw string) (access, newRefresh string, err error) {
	claims, err := m.Verify(raw, TokenTypeRefresh)
	if err != nil {
		return "", "", err
	}
	access, err = m.issue(claims.UserID, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return "", "", err
	}
	if !m.rotateRefresh {
		return access, "", nil
	}
	newRefresh, err = m.issue(claims.UserID, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return "", "", err
	}
	m.blacklist.Add(claims.JTI, claims.ExpiresAt)
	return access, newRefresh, nil
}

// Revoke blacklists a valid refresh token.
func (m *TokenManager) Revoke(raw string) error {
	claims, err := m.Verify(raw, TokenTypeRefresh)
	if err != nil {
		return err
	}
	m.blacklist.Add(claims.JTI, claims.ExpiresAt)
	return nil
}
