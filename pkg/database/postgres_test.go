package database

import (
	"context"
	"testing"

	"huntcall/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDSNDefaultsSSLMode ensures an empty ssl mode falls back to disable.
func TestDSNDefaultsSSLMode(t *testing.T) {
	dsn := DSN(&config.Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5432"})
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "sslmode=disable")
}

// TestTableHelpers exercises TableExists and GetTableCount against sqlmock.
func TestTableHelpers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("rooms").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "rooms"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	ok, err := TableExists(context.Background(), db, "rooms")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := GetTableCount(context.Background(), db, "rooms")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestHealthCheckNilDB reports an error instead of panicking.
func TestHealthCheckNilDB(t *testing.T) {
	assert.Error(t, HealthCheck(context.Background(), nil))
}
