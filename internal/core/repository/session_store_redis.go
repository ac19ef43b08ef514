package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/duynhne/game-session-service/internal/core/domain"
)

// RedisStore implements domain.SessionStore as a single Redis string key.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads the encoded table. Returns (nil, nil) when the key is absent.
func (r *RedisStore) Load(ctx context.Context) ([]domain.Session, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return domain.DecodeEntries(data)
}

// Save overwrites the key with the encoded table. The key never expires.
func (r *RedisStore) Save(ctx context.Context, sessions []domain.Session) error {
	data, err := domain.EncodeEntries(sessions)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, 0).Err()
}

// Clear deletes the key.
func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
