package identity

import (
	"errors"
	"net/http"
	"testing"

	"autodealer/internal/domain/auth"
)

func TestTranslateFailure_KnownMessages(t *testing.T) {
	tests := []struct {
		message string
		status  int
		want    error
	}{
		{"Invalid email/password", http.StatusBadRequest, auth.ErrInvalidCredentials},
		{"Invalid email or password.", http.StatusBadRequest, auth.ErrInvalidCredentials},
		{"Incorrect password", http.StatusBadRequest, auth.ErrInvalidCredentials},
		{"Wrong password, try again", http.StatusBadRequest, auth.ErrInvalidCredentials},
		{"Email not verified", http.StatusBadRequest, auth.ErrUnverifiedAccount},
		{"Please verify your email before signing in", http.StatusBadRequest, auth.ErrUnverifiedAccount},
		{"Email confirmation required", http.StatusBadRequest, auth.ErrUnverifiedAccount},
		{"Account is unverified", http.StatusBadRequest, auth.ErrUnverifiedAccount},
		{"User not found", http.StatusBadRequest, auth.ErrAccountNotFound},
		{"No account with this email", http.StatusBadRequest, auth.ErrAccountNotFound},
		{"User does not exist", http.StatusBadRequest, auth.ErrAccountNotFound},
		{"Email already exists", http.StatusBadRequest, auth.ErrAccountExists},
		{"This email is already registered", http.StatusBadRequest, auth.ErrAccountExists},
		{"Username already taken", http.StatusBadRequest, auth.ErrAccountExists},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			err := TranslateFailure(tt.status, tt.message)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if err.Error() != tt.message {
				t.Errorf("Expected message %q to be kept, got %q", tt.message, err.Error())
			}
		})
	}
}

func TestTranslateFailure_StatusFallback(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, auth.ErrInvalidCredentials},
		{http.StatusForbidden, auth.ErrUnverifiedAccount},
		{http.StatusNotFound, auth.ErrAccountNotFound},
		{http.StatusConflict, auth.ErrAccountExists},
		{http.StatusBadRequest, auth.ErrServerError},
		{http.StatusInternalServerError, auth.ErrServerError},
		{http.StatusBadGateway, auth.ErrServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := TranslateFailure(tt.status, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTranslateFailure_MessageWinsOverStatus(t *testing.T) {
	err := TranslateFailure(http.StatusInternalServerError, "Email not verified")
	if !errors.Is(err, auth.ErrUnverifiedAccount) {
		t.Errorf("Expected unverified account, got %v", err)
	}

	var perr *auth.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *auth.ProtocolError, got %T", err)
	}
	if perr.Status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", perr.Status)
	}
}
