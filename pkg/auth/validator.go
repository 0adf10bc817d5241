// Package auth validates the bearer token carried on the first
// framed record after a connection's TLS handshake completes. The
// proxy never issues tokens itself, so this is validate-only.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/errors"
)

// Config mirrors the auth section of the proxy configuration.
// SecretKey is optional: when unset, auth is not configured and the
// dispatcher's auth predicate is a no-op Allow.
type Config struct {
	SecretKey string `env:"AUTH_SECRET_KEY"`
	Algorithm string `env:"AUTH_ALGORITHM" env-default:"HS256"`
}

// Validator checks bearer tokens presented by connecting clients.
type Validator struct {
	secret    []byte
	algorithm string
}

func New(cfg Config) *Validator {
	return &Validator{secret: []byte(cfg.SecretKey), algorithm: cfg.Algorithm}
}

// Validate parses and verifies token, returning its claims on
// success. It rejects any token not signed with the configured
// algorithm, independent of what the token header claims.
func (v *Validator) Validate(token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != v.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.algorithm}))
	if err != nil {
		return nil, errors.Credential("bearer token rejected", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.Credential("bearer token claims invalid", nil)
	}

	return claims, nil
}

// ExpiresAt returns the token's exp claim, when present.
func ExpiresAt(claims jwt.MapClaims) (time.Time, bool) {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
