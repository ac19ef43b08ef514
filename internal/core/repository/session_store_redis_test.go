package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/game-session-service/internal/core/domain"
)

func newTestRedisStore(t *testing.T, key string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), key)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_LoadMissingKey(t *testing.T) {
	store, _ := newTestRedisStore(t, "sessions")

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, "sessions")

	sessions := []domain.Session{
		{ID: "session_1", GameID: "g1", UserID: "u1", StartTime: 10, LastActivity: 20, IsActive: true, SessionCoins: 5},
		{ID: "session_2", GameID: "g2", UserID: "u1", StartTime: 11, LastActivity: 21, IsActive: true,
			MilestonesReached: []domain.Milestone{{Milestone: "m", Timestamp: 15}}},
	}
	require.NoError(t, store.Save(ctx, sessions))

	raw, err := mr.Get("sessions")
	require.NoError(t, err)
	want, err := domain.EncodeEntries(sessions)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), raw)
	assert.Zero(t, mr.TTL("sessions"))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sessions, got)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("sessions"))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_SaveReordersAndShrinks(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, "sessions")

	a := domain.Session{ID: "session_a", GameID: "g", UserID: "u", IsActive: true}
	b := domain.Session{ID: "session_b", GameID: "g", UserID: "u", IsActive: true}
	c := domain.Session{ID: "session_c", GameID: "g", UserID: "u", IsActive: true}
	require.NoError(t, store.Save(ctx, []domain.Session{a, b, c}))
	require.NoError(t, store.Save(ctx, []domain.Session{c, a}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Session{c, a}, got)
}

func TestRedisStore_SaveEmptyTable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, "sessions")

	require.NoError(t, store.Save(ctx, []domain.Session{{ID: "session_1"}}))
	require.NoError(t, store.Save(ctx, nil))

	raw, err := mr.Get("sessions")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "a")
	b := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "b")
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	require.NoError(t, a.Save(ctx, []domain.Session{{ID: "session_a"}}))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_LoadUnreachable(t *testing.T) {
	store, mr := newTestRedisStore(t, "sessions")
	mr.Close()

	_, err := store.Load(context.Background())
	require.Error(t, err)
}
