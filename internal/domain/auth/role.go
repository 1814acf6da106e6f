package auth

// Role represents the role claim carried by an identity-service token
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// IsAdmin checks if the role grants access to admin-only views
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// CanonicalRole picks the canonical role out of a decoded role claim.
// Array claims resolve to their first element.
func CanonicalRole(roles []string) Role {
	if len(roles) == 0 {
		return ""
	}
	return Role(roles[0])
}
