package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/game-session-service/config"
	"github.com/duynhne/game-session-service/internal/core/domain"
	"github.com/duynhne/game-session-service/internal/core/repository"
)

// Connect creates a pgx connection pool and checks it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenStore builds the session store selected by cfg.Storage.Driver.
// The returned close function releases the underlying connection.
func OpenStore(ctx context.Context, cfg *config.Config) (domain.SessionStore, func(), error) {
	sc := cfg.Storage

	switch sc.Driver {
	case config.StorageSQLite:
		store, err := repository.OpenSQLiteStore(sc.SQLitePath, sc.Key)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", sc.SQLitePath).Str("key", sc.Key).Msg("SQLite session store opened")
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("SQLite store close error")
			}
		}, nil

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPass,
			DB:       sc.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		store := repository.NewRedisStore(client, sc.Key)
		log.Info().Str("addr", sc.RedisAddr).Str("key", sc.Key).Msg("Redis session store connected")
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("Redis store close error")
			}
		}, nil

	case config.StoragePostgres:
		pool, err := Connect(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewPgxStore(ctx, pool, sc.Key)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().Str("key", sc.Key).Msg("Database connection pool established")
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}
