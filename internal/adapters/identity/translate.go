package identity

import (
	"net/http"
	"strings"

	"autodealer/internal/domain/auth"
)

// The identity service reports failure categories only through its message text.
// Every known wording is listed here and pinned by translate_test.go; when the
// service adds a machine-readable code this table is the one place to replace.
var messageCategories = []struct {
	fragment string
	kind     error
}{
	{"invalid email/password", auth.ErrInvalidCredentials},
	{"invalid email or password", auth.ErrInvalidCredentials},
	{"invalid credentials", auth.ErrInvalidCredentials},
	{"incorrect password", auth.ErrInvalidCredentials},
	{"wrong password", auth.ErrInvalidCredentials},
	{"not verified", auth.ErrUnverifiedAccount},
	{"verify your email", auth.ErrUnverifiedAccount},
	{"email confirmation", auth.ErrUnverifiedAccount},
	{"unverified", auth.ErrUnverifiedAccount},
	{"user not found", auth.ErrAccountNotFound},
	{"account not found", auth.ErrAccountNotFound},
	{"no account", auth.ErrAccountNotFound},
	{"does not exist", auth.ErrAccountNotFound},
	{"already exists", auth.ErrAccountExists},
	{"already registered", auth.ErrAccountExists},
	{"already taken", auth.ErrAccountExists},
}

// TranslateFailure maps a failure envelope to a typed error. The message text is
// matched first; the HTTP status is only a fallback for unknown wordings.
func TranslateFailure(status int, message string) error {
	return &auth.ProtocolError{
		Kind:    categorize(status, message),
		Status:  status,
		Message: message,
	}
}

func categorize(status int, message string) error {
	lower := strings.ToLower(message)
	for _, c := range messageCategories {
		if strings.Contains(lower, c.fragment) {
			return c.kind
		}
	}

	switch status {
	case http.StatusUnauthorized:
		return auth.ErrInvalidCredentials
	case http.StatusForbidden:
		return auth.ErrUnverifiedAccount
	case http.StatusNotFound:
		return auth.ErrAccountNotFound
	case http.StatusConflict:
		return auth.ErrAccountExists
	}
	return auth.ErrServerError
}
