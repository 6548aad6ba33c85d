package accounts

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	credentialMinLen = 6
	credentialMaxLen = 10
)

// ValidateCredential enforces the credential policy: 6-10 characters with
// at least one uppercase letter and one digit.
func ValidateCredential(credential string) error {
	n := len([]rune(credential))
	if n < credentialMinLen || n > credentialMaxLen {
		return &ValidationError{Field: FieldCredential, Reason: "must be 6 to 10 characters"}
	}

	var hasUpper, hasDigit bool
	for _, r := range credential {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	if !hasUpper || !hasDigit {
		return &ValidationError{Field: FieldCredential, Reason: "must contain an uppercase letter and a digit"}
	}

	return nil
}

// CredentialDigest returns the deterministic digest used for the global
// credential-uniqueness check and never for authentication.
func CredentialDigest(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// HashCredential produces the bcrypt hash compared at login.
func HashCredential(credential string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareCredential reports whether the candidate matches the stored hash.
func CompareCredential(hash, credential string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil
}
