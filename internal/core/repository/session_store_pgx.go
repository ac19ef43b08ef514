package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duynhne/game-session-service/internal/core/domain"
)

const pgxSchema = `
CREATE TABLE IF NOT EXISTS game_sessions (
	storage_key TEXT NOT NULL,
	id          TEXT NOT NULL,
	position    INTEGER NOT NULL,
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (storage_key, id)
)`

// PgxPool is the part of *pgxpool.Pool the store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgxStore implements domain.SessionStore using pgxpool.
// Each session is its own row; Save upserts the present rows and deletes the rest
// in one transaction.
type PgxStore struct {
	pool PgxPool
	key  string
}

// NewPgxStore creates a PgxStore and ensures its table exists.
func NewPgxStore(ctx context.Context, pool PgxPool, key string) (*PgxStore, error) {
	if _, err := pool.Exec(ctx, pgxSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PgxStore{pool: pool, key: key}, nil
}

// Load returns every session under the store key ordered by position.
func (r *PgxStore) Load(ctx context.Context) ([]domain.Session, error) {
	query := `SELECT data FROM game_sessions WHERE storage_key = $1 ORDER BY position`

	rows, err := r.pool.Query(ctx, query, r.key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var s domain.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Save makes the stored rows match sessions exactly.
func (r *PgxStore) Save(ctx context.Context, sessions []domain.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}

	_, err = tx.Exec(ctx, `DELETE FROM game_sessions WHERE storage_key = $1 AND NOT (id = ANY($2))`, r.key, ids)
	if err != nil {
		return err
	}

	upsert := `
		INSERT INTO game_sessions (storage_key, id, position, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (storage_key, id)
		DO UPDATE SET
			position   = EXCLUDED.position,
			data       = EXCLUDED.data,
			updated_at = NOW()
	`

	for i, s := range sessions {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session %q: %w", s.ID, err)
		}
		if _, err := tx.Exec(ctx, upsert, r.key, s.ID, i, data); err != nil {
			return fmt.Errorf("upsert session %q: %w", s.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// Clear removes every row under the store key.
func (r *PgxStore) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM game_sessions WHERE storage_key = $1`, r.key)
	return err
}
