package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autodealer/internal/infrastructure/metrics"

	"github.com/rs/zerolog/log"
)

// Factory builds the session store of one browser
type Factory func(browserID string) (*Service, error)

type registryEntry struct {
	service  *Service
	lastSeen time.Time
}

// Registry keeps one session store per browser. Idle stores are evicted
// lazily on access; their persisted records are left in place.
type Registry struct {
	mu          sync.Mutex
	entries     map[string]*registryEntry
	factory     Factory
	idleTimeout time.Duration
	now         func() time.Time
	metrics     *metrics.Metrics
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryClock overrides the clock used for idle eviction
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryMetrics reports the number of held stores to m
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry. A zero idleTimeout disables eviction.
func NewRegistry(factory Factory, idleTimeout time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:     make(map[string]*registryEntry),
		factory:     factory,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the initialized store of browserID, creating it on first use
func (r *Registry) Get(ctx context.Context, browserID string) (*Service, error) {
	svc, err := r.acquire(browserID)
	if err != nil {
		return nil, err
	}
	if err := svc.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	return svc, nil
}

func (r *Registry) acquire(browserID string) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictIdleLocked(now)

	if e, ok := r.entries[browserID]; ok {
		e.lastSeen = now
		return e.service, nil
	}

	svc, err := r.factory(browserID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	r.entries[browserID] = &registryEntry{service: svc, lastSeen: now}
	r.metrics.SessionsHeld(len(r.entries))
	log.Debug().Str("browser_id", browserID).Msg("Created session store")
	return svc, nil
}

func (r *Registry) evictIdleLocked(now time.Time) {
	if r.idleTimeout <= 0 {
		return
	}
	evicted := 0
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.idleTimeout {
			e.service.Dispose()
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.metrics.SessionsHeld(len(r.entries))
		log.Debug().Int("evicted", evicted).Msg("Evicted idle session stores")
	}
}

// Forget disposes the store of browserID
func (r *Registry) Forget(browserID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[browserID]; ok {
		e.service.Dispose()
		delete(r.entries, browserID)
		r.metrics.SessionsHeld(len(r.entries))
	}
}

// Len returns the number of stores held in memory
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close disposes every held store
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.service.Dispose()
		delete(r.entries, id)
	}
	r.metrics.SessionsHeld(0)
}
