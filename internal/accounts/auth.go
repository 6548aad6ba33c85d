package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/clinica-online/accounts/internal/domain"
)

// Authenticator resolves a login into a session token pair for the
// transport layer. The token carries the resolved identity (id + role)
// so the authorization guard needs no further I/O.
type Authenticator interface {
	IssueToken(ctx context.Context, account *domain.Account) (string, error)
	ValidateToken(ctx context.Context, token string) (*Identity, error)
}

// Identity aliases the session identity. It lives in domain so the
// transport middleware can carry it without importing this package.
type Identity = domain.Identity

// AuthService resolves credentials to an identity across all three
// collections and applies the verification and approval gates.
type AuthService struct {
	repo         Repository
	auth         Authenticator
	throttle     *loginThrottle
	storeTimeout time.Duration
}

// NewAuthService creates the authentication service. A nil throttle
// config disables rate limiting.
func NewAuthService(repo Repository, auth Authenticator, throttle ThrottleConfig, storeTimeout time.Duration) *AuthService {
	if storeTimeout == 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &AuthService{
		repo:         repo,
		auth:         auth,
		throttle:     newLoginThrottle(throttle),
		storeTimeout: storeTimeout,
	}
}

// Login authenticates an (email, credential) pair. The patient collection
// is consulted first; creation-time uniqueness makes a cross-collection
// pair collision impossible, so the order is only a deterministic
// tie-break. On success the resolved identity is returned together with
// a session token.
func (s *AuthService) Login(ctx context.Context, email, credential string) (*domain.Account, string, error) {
	email = NormalizeEmail(email)

	if !s.throttle.allow(email) {
		return nil, "", ErrTooManyLoginAttempts
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.match(storeCtx, domain.RolePatient, email, credential)
	if err != nil {
		return nil, "", err
	}
	if account == nil {
		for _, role := range []domain.Role{domain.RoleSpecialist, domain.RoleAdmin} {
			account, err = s.match(storeCtx, role, email, credential)
			if err != nil {
				return nil, "", err
			}
			if account != nil {
				break
			}
		}
	}
	if account == nil {
		return nil, "", ErrInvalidCredentials
	}

	verified, approved := account.CanAuthenticate()
	if !verified {
		return nil, "", ErrAccountNotVerified
	}
	if !approved {
		return nil, "", ErrAccountNotApproved
	}

	token, err := s.auth.IssueToken(ctx, account)
	if err != nil {
		return nil, "", err
	}

	s.throttle.reset(email)
	return account, token, nil
}

// ValidateToken resolves a session token into the current identity.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	return s.auth.ValidateToken(ctx, token)
}

// match looks up one role's collection for the exact credential pair.
// A missing account and a credential mismatch are indistinguishable to
// the caller: both mean "no match in this collection".
func (s *AuthService) match(ctx context.Context, role domain.Role, email, credential string) (*domain.Account, error) {
	account, err := s.repo.FindByEmail(ctx, role, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil
		}
		return nil, mapStoreErr(err)
	}
	if !CompareCredential(account.CredentialHash, credential) {
		return nil, nil
	}
	return account, nil
}

// Authorize is the administrator-only capability guard. It performs no
// I/O: it reads only the already-resolved identity. A nil identity means
// the session is not authenticated.
func Authorize(identity *Identity) bool {
	return identity.IsAdmin()
}
