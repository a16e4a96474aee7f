package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"huntcall/internal/domain/call"
	huntcall_errors "huntcall/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// TestRoomCreateDuplicate maps a Postgres unique violation to ErrAlreadyExists.
func TestRoomCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRoomRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO rooms`)).
		WithArgs("r1", "h", "c", "s1", "u1", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &call.Room{ID: "r1", Hunt: "h", Call: "c", RoutedServer: "s1", CreatedBy: "u1"})
	assert.ErrorIs(t, err, huntcall_errors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRoomGetByCallNotFound maps sql.ErrNoRows to ErrNotFound.
func TestRoomGetByCallNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRoomRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM rooms WHERE call = $1`)).
		WithArgs("c").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByCall(context.Background(), "c")
	assert.ErrorIs(t, err, huntcall_errors.ErrNotFound)
}

// TestRoomDeleteIfRoutedTo re-checks ownership inside the delete statement.
func TestRoomDeleteIfRoutedTo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRoomRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM rooms WHERE id = $1 AND routed_server IN ($2,$3)`)).
		WithArgs("r1", "dead-a", "dead-b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM rooms WHERE id = $1 AND routed_server IN ($2)`)).
		WithArgs("r1", "dead-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.DeleteIfRoutedTo(context.Background(), "r1", []string{"dead-a", "dead-b"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DeleteIfRoutedTo(context.Background(), "r1", []string{"dead-a"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DeleteIfRoutedTo(context.Background(), "r1", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPeerDeleteByServersReturnsRows reads back the removed peers.
func TestPeerDeleteByServersReturnsRows(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPeerRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "hunt", "call", "tab", "created_server", "created_by", "muted", "deafened", "initial_peer_state", "created_at"}).
		AddRow("p1", "h", "c", "t1", "dead", "u1", false, false, "active", now).
		AddRow("p2", "h", "c2", "t2", "dead", "u2", true, true, "deafened", now)
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM peers WHERE created_server IN ($1) RETURNING`)).
		WithArgs("dead").
		WillReturnRows(rows)

	peers, err := repo.DeleteByServers(context.Background(), []string{"dead"})
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "c2", peers[1].Call)
	assert.Equal(t, call.PeerStateDeafened, peers[1].InitialPeerState)
	assert.True(t, peers[1].Deafened)
}

// TestPeerUpdateStateMissing returns ErrNotFound when no row matched.
func TestPeerUpdateStateMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPeerRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE peers SET muted = $1, deafened = $2`)).
		WithArgs(true, false, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateState(context.Background(), "gone", true, false)
	assert.ErrorIs(t, err, huntcall_errors.ErrNotFound)
}

// TestCallHistoryTouchUpserts uses ON CONFLICT to bump last_activity.
func TestCallHistoryTouchUpserts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCallHistoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (call) DO UPDATE SET last_activity`)).
		WithArgs("c", "h", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Touch(context.Background(), "h", "c"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestInitSchemaIsIdempotentSQL only issues IF NOT EXISTS statements.
func TestInitSchemaIsIdempotentSQL(t *testing.T) {
	db, mock := newMock(t)
	for _, stmt := range schema {
		assert.Contains(t, stmt, "IF NOT EXISTS")
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, InitSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
