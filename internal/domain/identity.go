package domain

// Identity is the resolved current identity of a session: set at login,
// read by the authorization guard, and scoped to the request context
// rather than shared process state.
type Identity struct {
	AccountID int64
	Role      Role
}

// IsAdmin reports whether the identity carries administrator privileges.
// A nil identity means the session is not authenticated.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
