package auth

import (
	"strings"
	"time"
)

// Session is the client-held record of the signed-in user
type Session struct {
	Email  string `json:"email"`  // Identity supplied at login time
	Token  string `json:"token"`  // Signed credential, empty when absent
	Role   Role   `json:"role"`   // Canonical role decoded from the token
	UserID string `json:"userId"` // Subject decoded from the token
}

// IsAdmin checks if the session holds the administrator role
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role.IsAdmin()
}

// HasWellFormedToken reports whether the token is absent or has the
// header.payload.signature shape
func (s *Session) HasWellFormedToken() bool {
	if s.Token == "" {
		return true
	}
	return IsThreePart(s.Token)
}

// IsThreePart reports whether raw has exactly three dot-separated segments
func IsThreePart(raw string) bool {
	return strings.Count(raw, ".") == 2
}

// NewSession builds a session record from a login identity and decoded claims
func NewSession(email, token string, claims *Claims) *Session {
	return &Session{
		Email:  email,
		Token:  token,
		Role:   claims.Role,
		UserID: claims.Subject,
	}
}

// WithRefreshedToken returns a copy carrying the new token and role.
// Email and user ID are preserved.
func (s Session) WithRefreshedToken(token string, claims *Claims) *Session {
	s.Token = token
	s.Role = claims.Role
	return &s
}

// IsStaleAt reports whether a session whose token expires at expiresAt is stale at now
func IsStaleAt(expiresAt, now time.Time) bool {
	return expiresAt.IsZero() || !now.Before(expiresAt)
}
