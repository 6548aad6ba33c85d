package accounts

import (
	"errors"
	"fmt"
)

// Authentication errors. All three are user-facing and non-retryable.
var (
	ErrInvalidCredentials   = errors.New("invalid email or credential")
	ErrAccountNotVerified   = errors.New("account email is not verified")
	ErrAccountNotApproved   = errors.New("account is pending administrator approval")
	ErrTooManyLoginAttempts = errors.New("too many login attempts")
)

// Repository errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrTokenNotFound   = errors.New("verification token not found or expired")
	// ErrStoreUnavailable marks a timed-out or otherwise transient store
	// failure. Nothing was committed, so the caller may retry the whole
	// operation.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// Registration errors.
var (
	ErrReservedSpecialty = errors.New("specialty is reserved for administrators")
)

// Field names reported by duplicate checks, in the fixed reporting order:
// national-ID first, then email, then credential.
const (
	FieldNationalID = "national_id"
	FieldEmail      = "email"
	FieldCredential = "credential"
)

// ValidationError reports a malformed or missing required field. It is
// local, never retried, and surfaced verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateFieldError reports that one of email/national-ID/credential
// already exists in some collection. Only the first offending field in
// reporting order is ever surfaced.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s already registered", e.Field)
}

// ConflictError is returned by a repository when a storage-level unique
// constraint rejects an insert that passed the pre-check. From the
// caller's perspective it is indistinguishable from a duplicate field,
// and the service remaps it accordingly.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unique constraint violation on %s", e.Field)
}

// AssetUploadError wraps a failure from the external asset store. The
// registration aborts with no entity created.
type AssetUploadError struct {
	Err error
}

func (e *AssetUploadError) Error() string {
	return fmt.Sprintf("asset upload failed: %v", e.Err)
}

func (e *AssetUploadError) Unwrap() error {
	return e.Err
}
