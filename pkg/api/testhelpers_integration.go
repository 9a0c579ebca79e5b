//go:build integration

package api

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	storagepg "github.com/platinummonkey/axle/pkg/storage/postgres"
)

const containerStopTimeout = 30 * time.Second

// SetupPostgresContainer starts a disposable Postgres with the axle schema
// applied and returns a connection plus a cleanup func. Tests are skipped
// when no container runtime is reachable.
//
// The cleanup func terminates with a fresh context so a test timeout that
// cancelled the original context cannot leak the container. AutoRemove
// drops the volume along with it.
func SetupPostgresContainer(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("no container runtime available, skipping integration tests")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("axle_test"),
		postgres.WithUsername("axle"),
		postgres.WithPassword("axle_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
		testcontainers.CustomizeRequest(testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				AutoRemove: true,
			},
		}),
	)
	if err != nil {
		t.Skipf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	require.NoError(t, storagepg.RunMigrations(ctx, db), "schema setup failed")

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("closing test database: %v", err)
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), containerStopTimeout)
		defer cancel()
		if err := container.Terminate(stopCtx); err != nil {
			t.Errorf("terminating postgres container: %v", err)
		}
	}

	return db, cleanup
}
