package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"autodealer/internal/domain/auth"

	"github.com/rs/zerolog/log"
)

var (
	// ErrKeyNotFound is returned by a KeyValueStore when the key is absent
	ErrKeyNotFound = errors.New("key not found")
	// ErrEmptyRecord is returned by Save for a session with neither email nor token
	ErrEmptyRecord = errors.New("session has neither email nor token")
)

// KeyValueStore is the durable local storage a session record is written to
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SessionRepository stores one session record under a fixed key
type SessionRepository struct {
	store KeyValueStore
	key   string
}

// NewSessionRepository creates a repository writing under key
func NewSessionRepository(store KeyValueStore, key string) *SessionRepository {
	return &SessionRepository{store: store, key: key}
}

// Key returns the storage key of the session record
func (r *SessionRepository) Key() string { return r.key }

// Save serializes the session and writes it under the repository key
func (r *SessionRepository) Save(ctx context.Context, session *auth.Session) error {
	if session == nil {
		return fmt.Errorf("save session: nil session")
	}
	if err := validateSession(session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.store.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load reads the persisted session. A missing key or an unreadable record
// yields (nil, nil); only storage failures are returned as errors.
func (r *SessionRepository) Load(ctx context.Context) (*auth.Session, error) {
	data, err := r.store.Get(ctx, r.key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	session, err := decodeSession(data)
	if err != nil {
		log.Warn().Err(err).Str("key", r.key).Msg("Ignoring persisted session")
		return nil, nil
	}
	return session, nil
}

// Clear removes the persisted session; clearing an absent key is a no-op
func (r *SessionRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, r.key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func decodeSession(data []byte) (*auth.Session, error) {
	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrPersistenceCorrupt, err)
	}
	if err := validateSession(&session); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrPersistenceCorrupt, err)
	}
	return &session, nil
}

// validateSession rejects records that could not be read back as a session
func validateSession(session *auth.Session) error {
	if session.Email == "" && session.Token == "" {
		return ErrEmptyRecord
	}
	if !session.HasWellFormedToken() {
		return fmt.Errorf("%w: token is not a three-part credential", auth.ErrMalformedCredential)
	}
	return nil
}
