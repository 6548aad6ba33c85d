// Package jwt implements the session identity token. The token is the
// per-session "current identity" handle: it carries the resolved account
// id and role so route guards can authorize without touching the store.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/clinica-online/accounts/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken marks an expired, malformed or mis-signed token.
var ErrInvalidToken = errors.New("invalid session token")

// Config holds signing parameters.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
}

// Authenticator issues and validates HMAC-signed session tokens.
type Authenticator struct {
	config Config
}

// NewAuthenticator creates a JWT authenticator.
func NewAuthenticator(config Config) *Authenticator {
	if config.TokenDuration == 0 {
		config.TokenDuration = 15 * time.Minute
	}
	return &Authenticator{config: config}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the authenticated account.
func (a *Authenticator) IssueToken(_ context.Context, account *domain.Account) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenDuration)),
		},
	})

	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token and returns the identity it
// carries.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (*domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	role := domain.Role(c.Role)
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: bad role", ErrInvalidToken)
	}

	return &domain.Identity{AccountID: id, Role: role}, nil
}
