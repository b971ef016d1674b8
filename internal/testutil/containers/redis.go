package containers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// StartRedis launches Redis and returns its redis:// URL. The container
// stops when the test finishes.
func StartRedis(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(tb, container)
	require.NoError(tb, err)

	url, err := container.ConnectionString(ctx)
	require.NoError(tb, err)
	return url
}
