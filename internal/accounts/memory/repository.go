// Package memory provides an in-memory accounts repository. It enforces
// the same unique indexes as the Postgres schema under a mutex, so it
// exhibits the identical conflict behavior for the check-then-insert
// race and backs the unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clinica-online/accounts/internal/accounts"
	"github.com/clinica-online/accounts/internal/domain"
)

type verificationToken struct {
	accountID int64
	expiresAt time.Time
}

// Repository is a mutex-guarded in-memory store.
type Repository struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*domain.Account

	byEmail      map[string]int64
	byNationalID map[int64]int64
	byDigest     map[string]int64

	tokens map[string]verificationToken
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		nextID:       1,
		accounts:     make(map[int64]*domain.Account),
		byEmail:      make(map[string]int64),
		byNationalID: make(map[int64]int64),
		byDigest:     make(map[string]int64),
		tokens:       make(map[string]verificationToken),
	}
}

// Create inserts the account, enforcing the three unique indexes. A
// violation returns *accounts.ConflictError exactly like the database
// constraint would.
func (r *Repository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byNationalID[account.NationalID]; ok {
		return &accounts.ConflictError{Field: accounts.FieldNationalID}
	}
	if _, ok := r.byEmail[account.Email]; ok {
		return &accounts.ConflictError{Field: accounts.FieldEmail}
	}
	if _, ok := r.byDigest[account.CredentialDigest]; ok {
		return &accounts.ConflictError{Field: accounts.FieldCredential}
	}

	account.ID = r.nextID
	r.nextID++
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	r.accounts[account.ID] = &stored
	r.byEmail[account.Email] = account.ID
	r.byNationalID[account.NationalID] = account.ID
	r.byDigest[account.CredentialDigest] = account.ID
	return nil
}

func (r *Repository) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *Repository) FindByEmail(_ context.Context, role domain.Role, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	account := r.accounts[id]
	if account.Role != role {
		return nil, accounts.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *Repository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *Repository) NationalIDExists(_ context.Context, nationalID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byNationalID[nationalID]
	return ok, nil
}

func (r *Repository) CredentialDigestExists(_ context.Context, digest string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byDigest[digest]
	return ok, nil
}

func (r *Repository) SetEmailVerified(_ context.Context, id int64, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	account.EmailVerified = verified
	account.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) SetApproved(_ context.Context, id int64, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	account.Approved = approved
	account.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) List(_ context.Context, role domain.Role) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*domain.Account
	for _, account := range r.accounts {
		if account.Role == role {
			copied := *account
			list = append(list, &copied)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *Repository) SaveVerificationToken(_ context.Context, accountID int64, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = verificationToken{accountID: accountID, expiresAt: expiresAt}
	return nil
}

func (r *Repository) RedeemVerificationToken(_ context.Context, token string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vt, ok := r.tokens[token]
	if !ok {
		return 0, accounts.ErrTokenNotFound
	}
	if time.Now().After(vt.expiresAt) {
		delete(r.tokens, token)
		return 0, accounts.ErrTokenNotFound
	}

	account, ok := r.accounts[vt.accountID]
	if !ok {
		// Account gone: leave the token untouched.
		return 0, accounts.ErrAccountNotFound
	}
	account.EmailVerified = true
	account.UpdatedAt = time.Now()
	delete(r.tokens, token)
	return vt.accountID, nil
}
