package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	redisContainerMemoryLimit = 128 * 1024 * 1024 // 128MB
	redisTestPoolSize         = 10
)

const redisPort nat.Port = "6379/tcp"

var redisContainer sharedContainer

func redisRequest() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{string(redisPort)},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Memory = redisContainerMemoryLimit
			hc.MemorySwap = redisContainerMemoryLimit
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(containerStartupTimeout),
			wait.ForListeningPort(redisPort).WithStartupTimeout(containerStartupTimeout),
		),
	}
}

// SetupTestRedis creates a Redis client using the shared container. The
// database is flushed after the test.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := NewTestContext(t)

	addr, err := redisContainer.get(context.Background(), redisRequest(), redisPort, nil)
	if err != nil {
		t.Fatalf("Failed to get shared Redis container: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: redisTestPoolSize,
	})
	if err = retry(func() error { return client.Ping(ctx).Err() }); err != nil {
		t.Fatalf("Failed to ping Redis: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), containerTerminateTimeout)
		defer cancel()
		_ = client.FlushDB(cleanupCtx).Err()
		_ = client.Close()
	})

	return client
}

// SetupTestRedisWithPrefix returns a client and a key prefix unique to the
// test, for tests that run in parallel against the shared server.
func SetupTestRedisWithPrefix(t *testing.T) (*redis.Client, string) {
	t.Helper()
	return SetupTestRedis(t), fmt.Sprintf("test:%s:", t.Name())
}
