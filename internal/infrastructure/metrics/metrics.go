// Package metrics exposes prometheus counters for session transitions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autodealer"

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	logins      *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	logouts     prometheus.Counter
	initialized *prometheus.CounterVec
	sessions    prometheus.Gauge
	exchanges   *prometheus.HistogramVec
}

// New creates a registry with the session collectors and the Go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome and failure category.",
		}, []string{"outcome", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Completed logouts.",
		}),
		initialized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_inits_total",
			Help:      "Session store initializations by resulting state.",
		}, []string{"state"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions",
			Help:      "Session stores currently held for browsers.",
		}),
		exchanges: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_exchange_seconds",
			Help:      "Latency of identity service exchanges.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	m.registry.MustRegister(
		m.logins,
		m.refreshes,
		m.logouts,
		m.initialized,
		m.sessions,
		m.exchanges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// LoginSucceeded counts a successful login
func (m *Metrics) LoginSucceeded() {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(OutcomeSuccess, "").Inc()
}

// LoginFailed counts a rejected login by error category
func (m *Metrics) LoginFailed(code string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(OutcomeFailure, code).Inc()
}

// Refreshed counts a token refresh attempt and its outcome
func (m *Metrics) Refreshed(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// LoggedOut counts a logout that ended a held session
func (m *Metrics) LoggedOut() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

// Initialized counts a store initialization by the state it reached
func (m *Metrics) Initialized(state string) {
	if m == nil {
		return
	}
	m.initialized.WithLabelValues(state).Inc()
}

// SessionsHeld sets the number of browser session stores held in memory
func (m *Metrics) SessionsHeld(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// ObserveExchange records the latency of one identity service call
func (m *Metrics) ObserveExchange(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(operation).Observe(seconds)
}
