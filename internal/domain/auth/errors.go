package auth

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnverifiedAccount   = errors.New("account not verified")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrNetworkFailure      = errors.New("network failure")
	ErrServerError         = errors.New("server error")
	ErrPersistenceCorrupt  = errors.New("persisted session is corrupt")
	ErrStoreDisposed       = errors.New("session store disposed")
)

// ProtocolError carries the identity service's failure reason together
// with the category it was translated to
type ProtocolError struct {
	Kind    error  // One of the sentinel errors above
	Status  int    // HTTP status, 0 when no response was received
	Message string // Human-readable reason from the failure envelope
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
	return e.Kind.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.Kind
}

// Reason returns the text to show a user for err
func Reason(err error) string {
	var perr *ProtocolError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}

// Code returns a stable machine-readable code for a translated error
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnverifiedAccount):
		return "unverified_account"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrNetworkFailure):
		return "network_failure"
	case errors.Is(err, ErrMalformedCredential):
		return "malformed_credential"
	}
	return "server_error"
}
