package accounts

import (
	"context"
	"fmt"
)

// DuplicateCheck reports, per candidate field, whether any collection
// already contains the value. A nil entry means the field was absent from
// the candidate and was not checked; absence is not a collision.
type DuplicateCheck struct {
	NationalID *bool
	Email      *bool
	Credential *bool
}

// FirstDuplicate returns the first colliding field in the fixed
// reporting order (national-ID, email, credential), or "" when nothing
// collides.
func (c DuplicateCheck) FirstDuplicate() string {
	if c.NationalID != nil && *c.NationalID {
		return FieldNationalID
	}
	if c.Email != nil && *c.Email {
		return FieldEmail
	}
	if c.Credential != nil && *c.Credential {
		return FieldCredential
	}
	return ""
}

// CheckDuplicates probes the repository for each present candidate field.
// Fields are passed already normalized: email lowercased and trimmed,
// credential as its deterministic digest. Zero values skip the check.
func CheckDuplicates(ctx context.Context, repo Repository, email string, nationalID int64, credentialDigest string) (DuplicateCheck, error) {
	var result DuplicateCheck

	if nationalID != 0 {
		exists, err := repo.NationalIDExists(ctx, nationalID)
		if err != nil {
			return DuplicateCheck{}, fmt.Errorf("check national id: %w", err)
		}
		result.NationalID = &exists
	}

	if email != "" {
		exists, err := repo.EmailExists(ctx, email)
		if err != nil {
			return DuplicateCheck{}, fmt.Errorf("check email: %w", err)
		}
		result.Email = &exists
	}

	if credentialDigest != "" {
		exists, err := repo.CredentialDigestExists(ctx, credentialDigest)
		if err != nil {
			return DuplicateCheck{}, fmt.Errorf("check credential: %w", err)
		}
		result.Credential = &exists
	}

	return result, nil
}
