package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/config"
)

func TestOpenWithDriver(t *testing.T) {
	t.Run("pings and applies pool settings", func(t *testing.T) {
		_, mock, err := sqlmock.NewWithDSN("ehrops_ok", sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing()

		cm, err := openWithDriver("sqlmock", config.DatabaseConfig{
			URL:      "ehrops_ok",
			MaxConns: 7,
			MinConns: 1,
			Timeout:  time.Second,
		})
		require.NoError(t, err)
		defer cm.Close()

		assert.Equal(t, 7, cm.Stats().MaxOpenConnections)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping failure closes the pool", func(t *testing.T) {
		_, mock, err := sqlmock.NewWithDSN("ehrops_down", sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		_, err = openWithDriver("sqlmock", config.DatabaseConfig{URL: "ehrops_down", MaxConns: 2})
		assert.ErrorContains(t, err, "failed to ping database")
	})
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	cm := &ConnectionManager{db: db}

	mock.ExpectPing()
	assert.NoError(t, cm.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	assert.ErrorContains(t, cm.HealthCheck(context.Background()), "database unhealthy")
}
