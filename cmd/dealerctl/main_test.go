package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autodealer/internal/adapters/identity/fake"
	"autodealer/internal/config"
	domainauth "autodealer/internal/domain/auth"

	"github.com/gin-gonic/gin"
)

func testConfig(t *testing.T) (*config.Config, *fake.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := fake.NewServer()
	if _, err := srv.AddUser("admin@test.com", "correct", domainauth.RoleAdmin, true); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := &config.Config{
		Identity: config.IdentityConfig{BaseURL: ts.URL, Timeout: 5 * time.Second},
		Storage:  config.StorageConfig{Driver: config.DriverFile, Dir: t.TempDir(), Key: "dealer.session"},
		Guard:    config.GuardConfig{LoginPath: "/login", HomePath: "/"},
	}
	return cfg, srv
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(cfg)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_LoginStatusGuardLogout(t *testing.T) {
	cfg, _ := testConfig(t)

	out, err := run(t, cfg, "status")
	if err != nil || !strings.Contains(out, "state:   unauthenticated") {
		t.Fatalf("Expected signed-out status, got %q (%v)", out, err)
	}

	out, err = run(t, cfg, "login", "--email", "admin@test.com", "--password", "correct")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !strings.Contains(out, "Logged in as admin@test.com (Admin)") {
		t.Errorf("Unexpected login output %q", out)
	}

	// A new process sees the persisted session
	out, err = run(t, cfg, "status")
	if err != nil || !strings.Contains(out, "state:   authenticated") || !strings.Contains(out, "role:    Admin") {
		t.Errorf("Expected persisted admin session, got %q (%v)", out, err)
	}

	out, err = run(t, cfg, "guard", "/admin/vehicles")
	if err != nil || !strings.Contains(out, "admin-only: allow") {
		t.Errorf("Expected admin view to be allowed, got %q (%v)", out, err)
	}

	if _, err := run(t, cfg, "logout"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	out, _ = run(t, cfg, "guard", "/orders")
	if !strings.Contains(out, "redirect -> /login") {
		t.Errorf("Expected redirect after logout, got %q", out)
	}
}

func TestCLI_LoginFailureShowsReason(t *testing.T) {
	cfg, _ := testConfig(t)

	_, err := run(t, cfg, "login", "--email", "admin@test.com", "--password", "wrong")
	if err == nil {
		t.Fatal("Expected login to fail")
	}
	if !strings.Contains(err.Error(), "Invalid email/password") || !strings.Contains(err.Error(), "invalid_credentials") {
		t.Errorf("Expected reason and code in error, got %v", err)
	}
}

func TestCLI_StaleSessionIsDropped(t *testing.T) {
	cfg, srv := testConfig(t)
	srv.SetTokenTTL(-time.Minute)

	if _, err := run(t, cfg, "login", "--email", "admin@test.com", "--password", "correct"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// The refresh cookie lives only in the login process, so the next process cannot renew
	out, err := run(t, cfg, "status")
	if err != nil || !strings.Contains(out, "state:   unauthenticated") {
		t.Errorf("Expected stale session to be dropped, got %q (%v)", out, err)
	}
}

func TestParseUserSpec(t *testing.T) {
	tests := []struct {
		spec    string
		role    domainauth.Role
		wantErr bool
	}{
		{"ana@test.com:pw", domainauth.RoleUser, false},
		{"ana@test.com:pw:Admin", domainauth.RoleAdmin, false},
		{"ana@test.com", "", true},
		{":pw", "", true},
	}

	for _, tt := range tests {
		_, _, role, err := parseUserSpec(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseUserSpec(%q): expected error %v, got %v", tt.spec, tt.wantErr, err)
		}
		if err == nil && role != tt.role {
			t.Errorf("parseUserSpec(%q): expected role %s, got %s", tt.spec, tt.role, role)
		}
	}
}
