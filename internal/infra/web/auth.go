package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ===== User session primitives =====

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
	errEmptySecret  = errors.New("auth: empty hmac secret")
)

type AuthConfig struct {
	HMACSecret []byte
	CookieName string
}

// AuthManager validates the session tokens issued by the user service. The raw
// token is kept so it can be forwarded downstream as the caller's auth context.
type AuthManager struct{ cfg AuthConfig }

// NewAuthManager refuses an empty secret.
func NewAuthManager(secret, cookieName string) (*AuthManager, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthManager{cfg: AuthConfig{HMACSecret: []byte(secret), CookieName: cookieName}}, nil
}

type UserClaims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Subject prefers the explicit userId claim and falls back to sub.
func (c *UserClaims) Subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Mint signs a token for userID. Used by tests and local tooling.
func (a *AuthManager) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.HMACSecret)
}

// ParseFromRequest returns the claims and the raw token.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*UserClaims, string, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			raw := strings.TrimSpace(hdr[7:])
			c, err := a.parse(raw)
			return c, raw, err
		}
	}
	// Cookie
	if c, err := r.Cookie(a.cfg.CookieName); err == nil && c.Value != "" {
		claims, err := a.parse(c.Value)
		return claims, c.Value, err
	}
	return nil, "", errMissingToken
}

func (a *AuthManager) parse(tok string) (*UserClaims, error) {
	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if len(a.cfg.HMACSecret) == 0 {
			return nil, errEmptySecret
		}
		return a.cfg.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject() == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

type sessionKey struct{}

type session struct {
	userID string
	token  string
}

func withSession(ctx context.Context, userID, token string) context.Context {
	return context.WithValue(ctx, sessionKey{}, session{userID: userID, token: token})
}

func sessionFrom(ctx context.Context) (session, bool) {
	s, ok := ctx.Value(sessionKey{}).(session)
	return s, ok
}
