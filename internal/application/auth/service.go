package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autodealer/internal/domain/auth"
	"autodealer/internal/infrastructure/metrics"

	"github.com/rs/zerolog/log"
)

// EventType names a session store transition
type EventType string

const (
	EventInitialized EventType = "initialized"
	EventLogin       EventType = "login"
	EventRefresh     EventType = "refresh"
	EventExpired     EventType = "expired"
	EventLogout      EventType = "logout"
)

// Event is emitted after a transition has been committed. Seq increases
// with every transition of one store.
type Event struct {
	Seq     uint64        `json:"seq"`
	Type    EventType     `json:"type"`
	State   auth.State    `json:"state"`
	Session *auth.Session `json:"session,omitempty"`
	At      time.Time     `json:"at"`
}

// Service holds the session of one user agent and drives its lifecycle.
// Transitions are serialized; readers never block on network calls.
type Service struct {
	repo     auth.SessionRepository
	identity auth.IdentityProvider
	decoder  auth.TokenDecoder
	metrics  *metrics.Metrics
	now      func() time.Time

	opMu sync.Mutex // held for the whole of a transition, including network calls
	seq  uint64     // guarded by opMu

	mu        sync.RWMutex
	state     auth.State
	session   *auth.Session
	expiresAt time.Time
	disposed  bool

	subMu       sync.Mutex
	subscribers map[int]func(Event)
	nextSubID   int

	queueMu  sync.Mutex
	queue    []Event
	draining bool
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the wall clock used for staleness checks
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records transitions in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a session store in the Unknown state
func NewService(repo auth.SessionRepository, provider auth.IdentityProvider, decoder auth.TokenDecoder, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		identity:    provider,
		decoder:     decoder,
		now:         time.Now,
		state:       auth.StateUnknown,
		subscribers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted session. A stale session gets exactly one refresh
// attempt; any failure leaves the store Unauthenticated. Init is a no-op once
// the store has left the Unknown state.
func (s *Service) Init(ctx context.Context) error {
	s.opMu.Lock()
	events, err := s.initLocked(ctx)
	if len(events) > 0 {
		s.metrics.Initialized(s.State().String())
	}
	s.enqueue(events...)
	s.opMu.Unlock()

	s.drain()
	return err
}

func (s *Service) initLocked(ctx context.Context) ([]Event, error) {
	if s.isDisposed() {
		return nil, auth.ErrStoreDisposed
	}
	if s.State() != auth.StateUnknown {
		return nil, nil
	}

	persisted, err := s.repo.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted session, starting signed out")
		persisted = nil
	}
	if persisted == nil || persisted.Token == "" {
		s.commit(auth.StateUnauthenticated, nil, time.Time{})
		return []Event{s.event(EventInitialized)}, nil
	}

	claims, err := s.decoder.Decode(persisted.Token)
	if err != nil {
		log.Warn().Err(err).Msg("Persisted token is undecodable, clearing session")
		s.clearPersisted(ctx)
		s.commit(auth.StateUnauthenticated, nil, time.Time{})
		return []Event{s.event(EventInitialized)}, nil
	}

	// Role and subject come from the token, never from the stored copy.
	restored := auth.NewSession(persisted.Email, persisted.Token, claims)
	if restored.Role != persisted.Role || restored.UserID != persisted.UserID {
		log.Warn().Str("user_id", restored.UserID).Msg("Persisted session disagrees with its token, using token claims")
	}

	if !auth.IsStaleAt(claims.ExpiresAt, s.now()) {
		s.commit(auth.StateAuthenticated, restored, claims.ExpiresAt)
		log.Info().Str("user_id", restored.UserID).Msg("Restored persisted session")
		return []Event{s.event(EventInitialized)}, nil
	}

	log.Debug().Str("user_id", restored.UserID).Time("expired_at", claims.ExpiresAt).Msg("Persisted session is stale, refreshing")
	refreshEvent := s.refreshLocked(ctx, restored)
	return []Event{refreshEvent, s.event(EventInitialized)}, nil
}

// refreshLocked renews the token of current. Failure clears the persisted record.
func (s *Service) refreshLocked(ctx context.Context, current *auth.Session) Event {
	start := time.Now()
	raw, err := s.identity.Refresh(ctx)
	s.metrics.ObserveExchange("refresh", time.Since(start).Seconds())

	var claims *auth.Claims
	if err == nil {
		claims, err = s.decoder.Decode(raw)
	}
	if err == nil {
		renewed := current.WithRefreshedToken(raw, claims)
		if err = s.repo.Save(ctx, renewed); err == nil {
			s.commit(auth.StateAuthenticated, renewed, claims.ExpiresAt)
			s.metrics.Refreshed(true)
			log.Info().Str("user_id", renewed.UserID).Msg("Session refreshed")
			return s.event(EventRefresh)
		}
	}

	log.Info().Err(err).Msg("Session refresh failed, signing out")
	s.metrics.Refreshed(false)
	s.clearPersisted(ctx)
	s.commit(auth.StateUnauthenticated, nil, time.Time{})
	return s.event(EventExpired)
}

// Login exchanges credentials for a token and persists the resulting session.
// On failure the store is left unchanged and the typed error is returned.
func (s *Service) Login(ctx context.Context, email, password string) error {
	s.opMu.Lock()
	ev, err := s.loginLocked(ctx, email, password)
	if err == nil {
		s.enqueue(ev)
	}
	s.opMu.Unlock()

	if err != nil {
		s.metrics.LoginFailed(auth.Code(err))
		return err
	}
	s.metrics.LoginSucceeded()
	s.drain()
	return nil
}

func (s *Service) loginLocked(ctx context.Context, email, password string) (Event, error) {
	if s.isDisposed() {
		return Event{}, auth.ErrStoreDisposed
	}

	start := time.Now()
	raw, err := s.identity.Login(ctx, email, password)
	s.metrics.ObserveExchange("login", time.Since(start).Seconds())
	if err != nil {
		log.Info().Err(err).Msg("Login rejected")
		return Event{}, err
	}

	claims, err := s.decoder.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Identity service issued an undecodable token")
		return Event{}, err
	}

	session := auth.NewSession(email, raw, claims)
	if err := s.repo.Save(ctx, session); err != nil {
		return Event{}, fmt.Errorf("failed to persist session: %w", err)
	}

	s.commit(auth.StateAuthenticated, session, claims.ExpiresAt)
	log.Info().Str("user_id", session.UserID).Str("role", string(session.Role)).Msg("User logged in")
	return s.event(EventLogin), nil
}

// Logout ends the session. The remote logout is attempted only when a session
// is held; its failure is logged and never reported. Calling Logout on a
// signed-out store is a no-op beyond clearing storage.
func (s *Service) Logout(ctx context.Context) {
	s.opMu.Lock()
	ev, held := s.logoutLocked(ctx)
	if held {
		s.enqueue(ev)
	}
	s.opMu.Unlock()

	if held {
		s.metrics.LoggedOut()
		s.drain()
	}
}

func (s *Service) logoutLocked(ctx context.Context) (Event, bool) {
	if s.isDisposed() {
		return Event{}, false
	}

	current, held := s.Current()
	if held {
		start := time.Now()
		if err := s.identity.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("Remote logout failed")
		}
		s.metrics.ObserveExchange("logout", time.Since(start).Seconds())
	}

	s.clearPersisted(ctx)
	s.commit(auth.StateUnauthenticated, nil, time.Time{})
	if held {
		log.Info().Str("user_id", current.UserID).Msg("User logged out")
	}
	return s.event(EventLogout), held
}

// Register creates an account. The store's state is not affected.
func (s *Service) Register(ctx context.Context, req auth.RegisterRequest) (string, error) {
	if s.isDisposed() {
		return "", auth.ErrStoreDisposed
	}
	return s.identity.Register(ctx, req)
}

// VerifyEmail confirms an account. The store's state is not affected.
func (s *Service) VerifyEmail(ctx context.Context, email, token string) (string, error) {
	if s.isDisposed() {
		return "", auth.ErrStoreDisposed
	}
	return s.identity.VerifyEmail(ctx, email, token)
}

// ResendVerification requests a new verification e-mail
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	if s.isDisposed() {
		return "", auth.ErrStoreDisposed
	}
	return s.identity.ResendVerification(ctx, email)
}

// Dispose releases subscribers. Further transitions fail with ErrStoreDisposed.
func (s *Service) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()

	s.subMu.Lock()
	s.subscribers = make(map[int]func(Event))
	s.subMu.Unlock()
}

// Current returns a copy of the held session
func (s *Service) Current() (auth.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return auth.Session{}, false
	}
	return *s.session, true
}

// State returns the lifecycle state
func (s *Service) State() auth.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a session is held. Unknown counts as false.
func (s *Service) IsAuthenticated() bool {
	return s.State() == auth.StateAuthenticated
}

// IsAdmin reports whether the held session carries the Admin role
func (s *Service) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAdmin()
}

// IsStale reports whether the held session's token has expired
func (s *Service) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil && auth.IsStaleAt(s.expiresAt, s.now())
}

// ExpiresAt returns the expiry of the held token
func (s *Service) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt, s.session != nil
}

// Subscribe registers fn for transition events and returns its cancel func.
// Events reach fn one at a time in transition order. fn runs on the goroutine
// that performed the transition, or on the one already delivering earlier events.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

// enqueue records events in transition order; callers hold opMu
func (s *Service) enqueue(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.queueMu.Lock()
	s.queue = append(s.queue, events...)
	s.queueMu.Unlock()
}

// drain delivers queued events unless another goroutine is already doing so.
// Runs without opMu so subscribers may read the store or start a transition.
func (s *Service) drain() {
	s.queueMu.Lock()
	if s.draining {
		s.queueMu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()
		s.publish(ev)
		s.queueMu.Lock()
	}
	s.draining = false
	s.queueMu.Unlock()
}

func (s *Service) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Service) commit(state auth.State, session *auth.Session, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.session = session
	s.expiresAt = expiresAt
}

func (s *Service) event(t EventType) Event {
	s.seq++
	ev := Event{Seq: s.seq, Type: t, At: s.now()}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev.State = s.state
	if s.session != nil {
		copied := *s.session
		ev.Session = &copied
	}
	return ev
}

func (s *Service) clearPersisted(ctx context.Context) {
	if err := s.repo.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to clear persisted session")
	}
}

func (s *Service) isDisposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// IsLoginFailure reports whether err is a rejection a user can act on,
// as opposed to an infrastructure failure
func IsLoginFailure(err error) bool {
	return errors.Is(err, auth.ErrInvalidCredentials) ||
		errors.Is(err, auth.ErrUnverifiedAccount) ||
		errors.Is(err, auth.ErrAccountNotFound)
}
