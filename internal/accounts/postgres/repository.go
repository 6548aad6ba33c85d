// Package postgres implements the accounts repository on PostgreSQL.
// The three global unique indexes (email, national_id, credential_digest)
// live in the schema and are the storage-level backstop for the
// registration check-then-insert race.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinica-online/accounts/internal/accounts"
	"github.com/clinica-online/accounts/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements accounts.Repository using pgx.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const accountColumns = `
	id, role, name, surname, email, national_id,
	credential_hash, credential_digest, email_verified, approved,
	health_plan, photo_url1, photo_url2,
	specialty, age, profile_image_url,
	created_at, updated_at
`

// Create inserts the account and fills in its assigned id. A unique
// index violation is mapped to *accounts.ConflictError with the
// offending field.
func (r *Repository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (
			role, name, surname, email, national_id,
			credential_hash, credential_digest, email_verified, approved,
			health_plan, photo_url1, photo_url2,
			specialty, age, profile_image_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		account.Role,
		account.Name,
		account.Surname,
		account.Email,
		account.NationalID,
		account.CredentialHash,
		account.CredentialDigest,
		account.EmailVerified,
		account.Approved,
		account.HealthPlan,
		account.PhotoURL1,
		account.PhotoURL2,
		account.Specialty,
		account.Age,
		account.ProfileImageURL,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if conflict := conflictField(err); conflict != "" {
			return &accounts.ConflictError{Field: conflict}
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id), "get account by id")
}

func (r *Repository) FindByEmail(ctx context.Context, role domain.Role, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE role = $1 AND email = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, role, email), "find account by email")
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email)
}

func (r *Repository) NationalIDExists(ctx context.Context, nationalID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE national_id = $1)`, nationalID)
}

func (r *Repository) CredentialDigestExists(ctx context.Context, digest string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE credential_digest = $1)`, digest)
}

func (r *Repository) SetEmailVerified(ctx context.Context, id int64, verified bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET email_verified = $2, updated_at = now() WHERE id = $1`, id, verified)
}

func (r *Repository) SetApproved(ctx context.Context, id int64, approved bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET approved = $2, updated_at = now() WHERE id = $1`, id, approved)
}

func (r *Repository) List(ctx context.Context, role domain.Role) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE role = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var list []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		list = append(list, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return list, nil
}

func (r *Repository) SaveVerificationToken(ctx context.Context, accountID int64, token string, expiresAt time.Time) error {
	query := `INSERT INTO verification_tokens (token, account_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, token, accountID, expiresAt); err != nil {
		return fmt.Errorf("save verification token: %w", err)
	}
	return nil
}

// RedeemVerificationToken deletes the token and flips email_verified in
// one statement, so a failure leaves both untouched.
func (r *Repository) RedeemVerificationToken(ctx context.Context, token string) (int64, error) {
	query := `
		WITH redeemed AS (
			DELETE FROM verification_tokens
			WHERE token = $1 AND expires_at > now()
			RETURNING account_id
		)
		UPDATE accounts
		SET email_verified = TRUE, updated_at = now()
		FROM redeemed
		WHERE accounts.id = redeemed.account_id
		RETURNING accounts.id
	`
	var accountID int64
	err := r.db.QueryRow(ctx, query, token).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, accounts.ErrTokenNotFound
		}
		return 0, fmt.Errorf("redeem verification token: %w", err)
	}
	return accountID, nil
}

func (r *Repository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("existence probe: %w", err)
	}
	return exists, nil
}

func (r *Repository) setFlag(ctx context.Context, query string, id int64, value bool) error {
	tag, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("update account flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrAccountNotFound
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row, op string) (*domain.Account, error) {
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accounts.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Role,
		&account.Name,
		&account.Surname,
		&account.Email,
		&account.NationalID,
		&account.CredentialHash,
		&account.CredentialDigest,
		&account.EmailVerified,
		&account.Approved,
		&account.HealthPlan,
		&account.PhotoURL1,
		&account.PhotoURL2,
		&account.Specialty,
		&account.Age,
		&account.ProfileImageURL,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// conflictField maps a unique_violation to the colliding account field.
func conflictField(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return ""
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "national_id"):
		return accounts.FieldNationalID
	case strings.Contains(pgErr.ConstraintName, "email"):
		return accounts.FieldEmail
	case strings.Contains(pgErr.ConstraintName, "credential"):
		return accounts.FieldCredential
	}
	return ""
}
