package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisErr       error
)

// RedisClient returns a client for a Redis container shared by every test in the package binary.
// Tests must use their own keys; the database is not flushed between tests.
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	redisOnce.Do(func() {
		redisContainer, redisErr = tcredis.Run(ctx, "redis:7-alpine")
	})
	require.NoError(t, redisErr)

	connectionString, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(connectionString)
	require.NoError(t, err)

	client := redis.NewClient(options)

	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	require.NoError(t, client.Ping(ctx).Err())

	return client
}
