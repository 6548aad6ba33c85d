package domain

import "time"

type Role string

const (
	RolePatient    Role = "patient"
	RoleSpecialist Role = "specialist"
	RoleAdmin      Role = "administrator"
)

// IsValid reports whether the role is one of the three known variants.
func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleSpecialist, RoleAdmin:
		return true
	}
	return false
}

// ReservedSpecialty is the specialty literal that marks an administrator
// account. It must never be accepted from a self-service specialist
// registration; only the admin-creation path sets it.
const ReservedSpecialty = "administrador"

// Account is a clinic account of any role. Role-specific fields are zero
// for the other variants: HealthPlan and the two photo URLs belong to
// patients, Specialty, Age and ProfileImageURL to specialists and
// administrators.
type Account struct {
	ID         int64
	Role       Role
	Name       string
	Surname    string
	Email      string
	NationalID int64

	// CredentialHash is the bcrypt hash compared at login.
	// CredentialDigest is a deterministic SHA-256 of the raw credential,
	// kept solely so the global credential-uniqueness invariant can be
	// checked without ever persisting a comparable plaintext.
	CredentialHash   string
	CredentialDigest string

	EmailVerified bool

	// Approved gates specialist logins. It is meaningless for patients
	// and always true for administrators.
	Approved bool

	HealthPlan string
	PhotoURL1  string
	PhotoURL2  string

	Specialty       string
	Age             int
	ProfileImageURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the account authenticates with administrator
// privileges.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAuthenticate applies the status gates from the approval subsystem:
// every role needs a verified email, and non-administrator specialists
// additionally need administrator approval.
func (a *Account) CanAuthenticate() (verified, approved bool) {
	verified = a.EmailVerified
	approved = a.Role != RoleSpecialist || a.Approved
	return verified, approved
}
