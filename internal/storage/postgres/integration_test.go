//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcoot/rankdir/internal/storage"
	"github.com/mcoot/rankdir/internal/storage/storagetest"
)

func TestPostgresStorageContract(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rankdir"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DSN = dsn
	store, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	suite.Run(t, &storagetest.Suite{
		Factory: func(t *testing.T) (storage.Storage, storage.SessionStore) {
			_, err := store.db.ExecContext(ctx, "TRUNCATE TABLE auth_sessions, identities, accounts RESTART IDENTITY CASCADE")
			require.NoError(t, err)
			return store, store
		},
	})
}
