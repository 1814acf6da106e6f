package auth

import "time"

// Claims represents the claims extracted from an identity-service token
type Claims struct {
	Subject   string    // sub, or a legacy identifier/email claim
	Email     string    // email claim, if present
	Role      Role      // Canonical role
	Roles     []string  // All roles as carried by the token
	ExpiresAt time.Time // exp; zero when the claim is missing
	IssuedAt  time.Time // iat; zero when the claim is missing
}

// IsExpired checks if the token expiry has passed at now.
// A token without an expiry is treated as expired.
func (c *Claims) IsExpired(now time.Time) bool {
	return IsStaleAt(c.ExpiresAt, now)
}
