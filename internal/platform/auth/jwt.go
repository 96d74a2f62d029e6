// Package auth implements session tokens and the user stores behind
// the login endpoint. Clients authenticate once with HTTP Basic
// credentials and carry an HS256 bearer token afterwards.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the token signing and validation settings.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	// DefaultLifetime is used when the client does not ask for one.
	DefaultLifetime time.Duration
	// MaxLifetime caps client-requested lifetimes.
	MaxLifetime time.Duration
}

// TokenIssuer signs session tokens.
type TokenIssuer struct {
	cfg Config
}

func NewTokenIssuer(cfg Config) *TokenIssuer {
	return &TokenIssuer{cfg: cfg}
}

// Sign issues a token for the subject. A non-positive lifetime falls
// back to the configured default.
func (t *TokenIssuer) Sign(subject string, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = t.cfg.DefaultLifetime
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    t.cfg.Issuer,
		Audience:  jwt.ClaimStrings{t.cfg.Audience},
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its subject.
func Verify(cfg Config, tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("auth: invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("auth: token without subject")
	}
	return claims.Subject, nil
}
