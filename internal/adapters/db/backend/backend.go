// Package backend opens the key-value store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"autodealer/internal/adapters/db"
	"autodealer/internal/adapters/db/file"
	"autodealer/internal/adapters/db/memory"
	"autodealer/internal/adapters/db/postgres"
	"autodealer/internal/adapters/db/redis"
	"autodealer/internal/config"

	"github.com/rs/zerolog/log"
)

const redisPrefix = "autodealer:"

// Open connects the configured storage driver. The returned close func
// releases its connections and is never nil.
func Open(ctx context.Context, cfg config.StorageConfig) (db.KeyValueStore, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		log.Warn().Msg("Using in-memory session storage, sessions will not survive a restart")
		return memory.NewStore(), func() {}, nil

	case config.DriverFile:
		store, err := file.NewStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", cfg.Dir).Msg("Using file session storage")
		return store, func() {}, nil

	case config.DriverRedis:
		client, err := redis.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("Using redis session storage")
		return redis.NewStore(client, redisPrefix), func() { _ = client.Close() }, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("Using postgres session storage")
		return postgres.NewStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
