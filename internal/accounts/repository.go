package accounts

import (
	"context"
	"time"

	"github.com/clinica-online/accounts/internal/domain"
)

// Repository is the single polymorphic store over all three account
// collections, keyed by the role tag. Implementations must enforce the
// global uniqueness of email, national-ID and credential digest at the
// storage layer and surface violations as *ConflictError; that constraint
// is the backstop for the check-then-insert race in registration.
type Repository interface {
	// Create inserts the account and assigns its surrogate ID.
	Create(ctx context.Context, account *domain.Account) error

	GetByID(ctx context.Context, id int64) (*domain.Account, error)

	// FindByEmail looks up within one role's collection. Returns
	// ErrAccountNotFound when no account matches.
	FindByEmail(ctx context.Context, role domain.Role, email string) (*domain.Account, error)

	// Existence probes for the uniqueness validator. Each checks the
	// union of all three collections.
	EmailExists(ctx context.Context, email string) (bool, error)
	NationalIDExists(ctx context.Context, nationalID int64) (bool, error)
	CredentialDigestExists(ctx context.Context, digest string) (bool, error)

	// Flag mutations. Accounts are otherwise immutable in this subsystem.
	SetEmailVerified(ctx context.Context, id int64, verified bool) error
	SetApproved(ctx context.Context, id int64, approved bool) error

	List(ctx context.Context, role domain.Role) ([]*domain.Account, error)

	// Email verification tokens.
	SaveVerificationToken(ctx context.Context, accountID int64, token string, expiresAt time.Time) error
	// RedeemVerificationToken atomically marks the owning account's email
	// as verified and deletes the token, returning the account id. The
	// token survives when the flag cannot be set. Returns ErrTokenNotFound
	// if unknown or expired.
	RedeemVerificationToken(ctx context.Context, token string) (int64, error)
}
