// Package dbtest starts a migrated Postgres container for integration tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Setup starts postgres:16-alpine, applies all migrations and returns a
// pool. It connects as a superuser, which row security never restricts.
func Setup(t *testing.T) *database.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("rentaldesk_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(ctx, connStr, migrations.FS))

	pool, err := database.Connect(ctx, connStr, database.PoolConfig{MaxConns: 5})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// SeedUser inserts an auth user and profile and returns the user id.
func SeedUser(t *testing.T, pool *database.Pool, email, role string) string {
	t.Helper()
	ctx := context.Background()

	var id string
	require.NoError(t, pool.QueryRow(ctx,
		"INSERT INTO auth_users (email, password_hash) VALUES ($1, 'x') RETURNING id", email,
	).Scan(&id))
	_, err := pool.Exec(ctx,
		"INSERT INTO profiles (id, role, full_name) VALUES ($1, $2, $3)", id, role, email)
	require.NoError(t, err)
	return id
}

// SeedCompany inserts a company owned by ownerID and returns its id.
func SeedCompany(t *testing.T, pool *database.Pool, name, ownerID string) int64 {
	t.Helper()

	var id int64
	require.NoError(t, pool.QueryRow(context.Background(),
		"INSERT INTO companies (name, owner_id) VALUES ($1, $2) RETURNING id", name, ownerID,
	).Scan(&id))
	return id
}
