// Package containers starts throwaway PostgreSQL and Redis instances for
// the tagged integration and end-to-end suites. Containers live for one
// test lifetime and the schema comes from the real migration files, so
// the suites exercise the same constraints and indexes production runs.
package containers

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres launches PostgreSQL, applies every migration and returns a
// connection string. The container stops when the test finishes.
func StartPostgres(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("auction_test"),
		postgres.WithUsername("auction"),
		postgres.WithPassword("auction"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(tb, container)
	require.NoError(tb, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(tb, err)

	applyMigrations(tb, dsn)
	return dsn
}

func applyMigrations(tb testing.TB, dsn string) {
	tb.Helper()

	db, err := sql.Open("postgres", dsn)
	require.NoError(tb, err)
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	require.NoError(tb, err)

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir(tb), "postgres", driver)
	require.NoError(tb, err)
	require.NoError(tb, m.Up())

	srcErr, dbErr := m.Close()
	require.NoError(tb, srcErr)
	require.NoError(tb, dbErr)
}

// migrationsDir walks up from the working directory to the module root, so
// the helper works from any package depth.
func migrationsDir(tb testing.TB) string {
	tb.Helper()

	dir, err := os.Getwd()
	require.NoError(tb, err)
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		require.NotEqual(tb, dir, parent, "migrations directory not found above %s", dir)
		dir = parent
	}
}
