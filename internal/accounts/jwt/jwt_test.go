package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/clinica-online/accounts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret", TokenDuration: time.Minute})
	account := &domain.Account{ID: 42, Role: domain.RoleSpecialist}

	token, err := auth.IssueToken(context.Background(), account)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := auth.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.AccountID)
	assert.Equal(t, domain.RoleSpecialist, identity.Role)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewAuthenticator(Config{SecretKey: "secret-a", TokenDuration: time.Minute})
	verifier := NewAuthenticator(Config{SecretKey: "secret-b", TokenDuration: time.Minute})

	token, err := issuer.IssueToken(context.Background(), &domain.Account{ID: 1, Role: domain.RolePatient})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret", TokenDuration: -time.Minute})

	token, err := auth.IssueToken(context.Background(), &domain.Account{ID: 1, Role: domain.RolePatient})
	require.NoError(t, err)

	_, err = auth.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"})

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := auth.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestValidateToken_Tampered(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret", TokenDuration: time.Minute})

	token, err := auth.IssueToken(context.Background(), &domain.Account{ID: 7, Role: domain.RolePatient})
	require.NoError(t, err)

	tampered := token + "x"
	_, err = auth.ValidateToken(context.Background(), tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
