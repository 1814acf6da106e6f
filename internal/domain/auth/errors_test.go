package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestProtocolError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ProtocolError
		message string
	}{
		{"server message", &ProtocolError{Kind: ErrInvalidCredentials, Status: 400, Message: "Invalid email/password"}, "Invalid email/password"},
		{"status only", &ProtocolError{Kind: ErrServerError, Status: 502}, "server error (status 502)"},
		{"kind only", &ProtocolError{Kind: ErrNetworkFailure}, "network failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.message {
				t.Errorf("Expected %q, got %q", tt.message, tt.err.Error())
			}
			if !errors.Is(tt.err, tt.err.Kind) {
				t.Errorf("Expected error to unwrap to %v", tt.err.Kind)
			}
		})
	}
}

func TestReason(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", &ProtocolError{Kind: ErrUnverifiedAccount, Message: "Email not verified"})
	if got := Reason(wrapped); got != "Email not verified" {
		t.Errorf("Expected server message, got %q", got)
	}
	if got := Reason(ErrPersistenceCorrupt); got != ErrPersistenceCorrupt.Error() {
		t.Errorf("Expected sentinel text, got %q", got)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ProtocolError{Kind: ErrInvalidCredentials}, "invalid_credentials"},
		{&ProtocolError{Kind: ErrUnverifiedAccount}, "unverified_account"},
		{&ProtocolError{Kind: ErrAccountNotFound}, "account_not_found"},
		{&ProtocolError{Kind: ErrAccountExists}, "account_exists"},
		{&ProtocolError{Kind: ErrNetworkFailure}, "network_failure"},
		{fmt.Errorf("decode: %w", ErrMalformedCredential), "malformed_credential"},
		{errors.New("boom"), "server_error"},
	}

	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v): expected %q, got %q", tt.err, tt.want, got)
		}
	}
}
