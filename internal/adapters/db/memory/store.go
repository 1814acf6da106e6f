package memory

import (
	"context"
	"sync"

	"autodealer/internal/adapters/db"
)

// Store is an in-memory implementation of db.KeyValueStore
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte // key -> serialized value
}

// NewStore creates a new in-memory key-value store
func NewStore() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

// Get retrieves a copy of the value stored under key
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value under key
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
