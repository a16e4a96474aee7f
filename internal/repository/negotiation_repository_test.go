package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDeleteGroupRunsInTransaction removes cross-group consumers and every child table.
func TestDeleteGroupRunsInTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNegotiationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM consumer_acks WHERE consumer IN (`)).WithArgs("tr1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM consumers WHERE producer_server IN (`)).WithArgs("tr1").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, table := range groupTables {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ` + table + ` WHERE transport_request = $1`)).
			WithArgs("tr1").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM transport_requests WHERE id = $1`)).WithArgs("tr1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteGroup(context.Background(), "tr1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestLoadGroupDistributesChildren attaches child rows to their request.
func TestLoadGroupDistributesChildren(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNegotiationRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM transport_requests WHERE id = $1`)).WithArgs("tr1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_server", "routed_server", "call", "peer", "created_by", "rtp_capabilities", "created_at"}).
			AddRow("tr1", "s1", "s2", "c", "p", "u", "{}", now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM transports WHERE transport_request IN ($1)`)).WithArgs("tr1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "transport_request", "created_server", "call", "peer", "direction", "transport_id", "ice_parameters", "ice_candidates", "dtls_parameters", "created_at"}).
			AddRow("t-send", "tr1", "s2", "c", "p", "send", "eng-1", "{}", "[]", "{}", now).
			AddRow("t-recv", "tr1", "s2", "c", "p", "recv", "eng-2", "{}", "[]", "{}", now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM connect_requests`)).WithArgs("tr1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM connect_acks`)).WithArgs("tr1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "transport_request", "created_server", "call", "peer", "transport", "created_at"}).
			AddRow("a1", "tr1", "s2", "c", "p", "t-send", now))
	for _, table := range []string{"producer_clients", "producer_servers", "consumers", "consumer_acks"} {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM ` + table)).WithArgs("tr1").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}

	g, err := repo.LoadGroup(context.Background(), "tr1")
	require.NoError(t, err)
	assert.Equal(t, "s2", g.Request.RoutedServer)
	assert.Len(t, g.Transports, 2)
	assert.True(t, g.Connected("t-send"))
	assert.False(t, g.Ready())
	assert.NoError(t, mock.ExpectationsWereMet())
}
