package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/game-session-service/internal/core/domain"
)

var (
	schemaSQL = regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS game_sessions")
	loadSQL   = regexp.QuoteMeta("SELECT data FROM game_sessions WHERE storage_key = $1 ORDER BY position")
	pruneSQL  = regexp.QuoteMeta("DELETE FROM game_sessions WHERE storage_key = $1 AND NOT (id = ANY($2))")
	upsertSQL = regexp.QuoteMeta("INSERT INTO game_sessions (storage_key, id, position, data)")
	clearSQL  = regexp.QuoteMeta("DELETE FROM game_sessions WHERE storage_key = $1") + "$"
)

func newTestPgxStore(t *testing.T) (*PgxStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectExec(schemaSQL).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	store, err := NewPgxStore(context.Background(), mock, "sessions")
	require.NoError(t, err)
	return store, mock
}

func sessionRow(t *testing.T, s domain.Session) []byte {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return data
}

func TestNewPgxStore_SchemaError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(schemaSQL).WillReturnError(errors.New("permission denied"))
	_, err = NewPgxStore(context.Background(), mock, "sessions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStore_LoadEmpty(t *testing.T) {
	store, mock := newTestPgxStore(t)

	mock.ExpectQuery(loadSQL).WithArgs("sessions").WillReturnRows(pgxmock.NewRows([]string{"data"}))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStore_LoadKeepsRowOrder(t *testing.T) {
	store, mock := newTestPgxStore(t)

	a := domain.Session{ID: "session_a", GameID: "g", UserID: "u", IsActive: true, SessionCoins: 2}
	b := domain.Session{ID: "session_b", GameID: "g", UserID: "u",
		MilestonesReached: []domain.Milestone{{Milestone: "m", Timestamp: 15}}}
	mock.ExpectQuery(loadSQL).WithArgs("sessions").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow(sessionRow(t, b)).
			AddRow(sessionRow(t, a)))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Session{b, a}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStore_LoadBadRow(t *testing.T) {
	store, mock := newTestPgxStore(t)

	mock.ExpectQuery(loadSQL).WithArgs("sessions").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte("not json")))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStore_SaveWritesPositions(t *testing.T) {
	store, mock := newTestPgxStore(t)

	a := domain.Session{ID: "session_a", GameID: "g", UserID: "u", IsActive: true}
	b := domain.Session{ID: "session_b", GameID: "g", UserID: "u", IsActive: true}

	// The second save reorders the table; positions follow the new order.
	for _, table := range [][]domain.Session{{a, b}, {b, a}} {
		mock.ExpectBegin()
		mock.ExpectExec(pruneSQL).
			WithArgs("sessions", []string{table[0].ID, table[1].ID}).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		for i, s := range table {
			mock.ExpectExec(upsertSQL).
				WithArgs("sessions", s.ID, i, sessionRow(t, s)).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()

		require.NoError(t, store.Save(context.Background(), table))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStore_SaveEmptyTable(t *testing.T) {
	store, mock := newTestPgxStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(pruneSQL).
		WithArgs("sessions", []string{}).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStore_SaveRollsBackOnError(t *testing.T) {
	store, mock := newTestPgxStore(t)

	s := domain.Session{ID: "session_a", GameID: "g", UserID: "u"}
	mock.ExpectBegin()
	mock.ExpectExec(pruneSQL).
		WithArgs("sessions", []string{"session_a"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(upsertSQL).
		WithArgs("sessions", "session_a", 0, sessionRow(t, s)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), []domain.Session{s})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStore_Clear(t *testing.T) {
	store, mock := newTestPgxStore(t)

	mock.ExpectExec(clearSQL).WithArgs("sessions").WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, store.Clear(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
