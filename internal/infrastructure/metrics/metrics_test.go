package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.LoginSucceeded()
	m.LoginFailed("invalid_credentials")
	m.LoginFailed("invalid_credentials")
	m.Refreshed(false)
	m.LoggedOut()
	m.Initialized("authenticated")
	m.SessionsHeld(3)
	m.ObserveExchange("login", 0.2)

	out := scrape(t, m)
	expected := []string{
		`autodealer_logins_total{code="",outcome="success"} 1`,
		`autodealer_logins_total{code="invalid_credentials",outcome="failure"} 2`,
		`autodealer_token_refreshes_total{outcome="failure"} 1`,
		`autodealer_logouts_total 1`,
		`autodealer_session_inits_total{state="authenticated"} 1`,
		`autodealer_browser_sessions 3`,
		`autodealer_identity_exchange_seconds_count{operation="login"} 1`,
	}
	for _, line := range expected {
		if !strings.Contains(out, line) {
			t.Errorf("Expected metrics output to contain %q", line)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.LoginSucceeded()
	m.LoginFailed("x")
	m.Refreshed(true)
	m.LoggedOut()
	m.Initialized("unknown")
	m.SessionsHeld(1)
	m.ObserveExchange("refresh", 1)
}
