package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autodealer/internal/adapters/db"

	goredis "github.com/redis/go-redis/v9"
)

// Store is a Redis-backed db.KeyValueStore. Keys never expire.
type Store struct {
	client *goredis.Client
	prefix string
}

// Connect creates a client and checks the server is reachable
func Connect(ctx context.Context, addr, password string, database int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewStore wraps client, namespacing keys with prefix
func NewStore(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

// Get returns the value under key, db.ErrKeyNotFound when absent
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set writes value under key without expiry
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

// Delete removes key; deleting an absent key is not an error
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
