package util

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedRedisAddr string
	redisOnce       sync.Once
	redisErr        error
)

// SetupTestRedis returns a client on a flushed logical database.
//   - CI: connects to CI_REDIS_ADDR
//   - Local: uses a shared redis testcontainer
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("CI_REDIS_ADDR")
	if addr == "" {
		redisOnce.Do(func() {
			ctx := context.Background()
			container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
				ContainerRequest: testcontainers.ContainerRequest{
					Image:        "redis:7-alpine",
					ExposedPorts: []string{"6379/tcp"},
					WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
				},
				Started: true,
			})
			if err != nil {
				redisErr = err
				return
			}
			sharedRedisAddr, redisErr = container.Endpoint(ctx, "")
		})
		require.NoError(t, redisErr, "failed to start redis container")
		addr = sharedRedisAddr
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}
