package auth

import "context"

// SessionRepository persists the single session record of a store
type SessionRepository interface {
	// Save writes the session under the repository's key
	Save(ctx context.Context, session *Session) error

	// Load returns the persisted session, or nil when absent or unreadable
	Load(ctx context.Context) (*Session, error)

	// Clear removes the persisted session
	Clear(ctx context.Context) error
}

// IdentityProvider is the remote identity service as seen by the session store
type IdentityProvider interface {
	Login(ctx context.Context, email, password string) (string, error)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, req RegisterRequest) (string, error)
	VerifyEmail(ctx context.Context, email, token string) (string, error)
	ResendVerification(ctx context.Context, email string) (string, error)
}

// TokenDecoder extracts claims from a signed credential
type TokenDecoder interface {
	Decode(raw string) (*Claims, error)
}

// RegisterRequest represents a new storefront account
type RegisterRequest struct {
	Email       string `json:"Email" binding:"required"`
	Password    string `json:"Password" binding:"required"`
	FirstName   string `json:"FirstName,omitempty"`
	LastName    string `json:"LastName,omitempty"`
	PhoneNumber string `json:"PhoneNumber,omitempty"`
}
