// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. Clients present an HS256 bearer
// token whose subject is their firebase id. For local development, and when
// authentication is not required, an X-User-ID header is accepted instead.
// The identity is stored in the Gin context under UserIDKey and added to the
// request-scoped logger.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// UserIDKey is the Gin context key of the caller identity (firebase id).
	UserIDKey = "userID"
	// HeaderUserID is the development identity header.
	HeaderUserID = "X-User-ID"
)

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret verifies HS256 signatures. Empty disables bearer tokens.
	Secret []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
	// Required rejects requests without a valid token and ignores X-User-ID.
	Required bool
	// Leeway tolerates clock skew on exp/nbf. Defaults to 30s.
	Leeway time.Duration
}

var errNoSecret = errors.New("bearer tokens are not configured")

// Auth returns the identity middleware.
//
// Behavior:
//   - "Authorization: Bearer <jwt>" is verified; a bad token is always 401,
//     even when authentication is optional.
//   - Without a token, Required=true answers 401; otherwise X-User-ID (if
//     any) becomes the identity and the request proceeds, possibly anonymous.
func Auth(opts AuthOptions) gin.HandlerFunc {
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)
	keyFn := func(*jwt.Token) (any, error) {
		if len(opts.Secret) == 0 {
			return nil, errNoSecret
		}
		return opts.Secret, nil
	}

	return func(c *gin.Context) {
		if raw, ok := bearer(c.GetHeader("Authorization")); ok {
			var claims jwt.RegisteredClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFn); err != nil || strings.TrimSpace(claims.Subject) == "" {
				LoggerFrom(c).Debug().Err(err).Msg("bearer token rejected")
				unauthorized(c, "invalid or expired token")
				return
			}
			setIdentity(c, strings.TrimSpace(claims.Subject))
			c.Next()
			return
		}

		if opts.Required {
			unauthorized(c, "missing bearer token")
			return
		}
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			setIdentity(c, h)
		}
		c.Next()
	}
}

// UserIDFrom returns the caller identity set by Auth.
func UserIDFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// SignToken issues an HS256 token for subject. Used by tooling and tests.
func SignToken(secret []byte, subject, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

func setIdentity(c *gin.Context, id string) {
	c.Set(UserIDKey, id)
	attachLogger(c, LoggerFrom(c).With().Str("user_id", id).Logger())
}

func unauthorized(c *gin.Context, msg string) {
	abortJSON(c, http.StatusUnauthorized, "unauthorized", msg)
}
