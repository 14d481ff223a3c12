package testutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

const (
	contextTimeout            = 30 * time.Second
	containerStartupTimeout   = 90 * time.Second
	containerTerminateTimeout = 10 * time.Second
	pingRetries               = 10
	pingRetryDelay            = 500 * time.Millisecond
)

// NewTestContext creates context with timeout for tests
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), contextTimeout)
	t.Cleanup(cancel)
	return ctx
}

// sharedContainer starts a container once per test binary and hands out its
// mapped address.
type sharedContainer struct {
	once      sync.Once
	container testcontainers.Container
	addr      string
	err       error
}

func (s *sharedContainer) get(
	ctx context.Context,
	req testcontainers.ContainerRequest,
	port nat.Port,
	init func(context.Context, testcontainers.Container, string) error,
) (string, error) {
	s.once.Do(func() {
		s.container, s.addr, s.err = startContainer(ctx, req, port)
		if s.err == nil && init != nil {
			s.err = init(ctx, s.container, s.addr)
		}
	})
	return s.addr, s.err
}

func (s *sharedContainer) terminate() {
	if s.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), containerTerminateTimeout)
	defer cancel()
	_ = s.container.Terminate(ctx)
}

func startContainer(
	ctx context.Context,
	req testcontainers.ContainerRequest,
	port nat.Port,
) (testcontainers.Container, string, error) {
	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start %s container: %w", req.Image, err)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := cont.MappedPort(ctx, port)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container port: %w", err)
	}
	return cont, net.JoinHostPort(host, mapped.Port()), nil
}

// retry calls fn until it succeeds or the attempts run out.
func retry(fn func() error) error {
	var err error
	for i := range pingRetries {
		if err = fn(); err == nil {
			return nil
		}
		if i < pingRetries-1 {
			time.Sleep(pingRetryDelay)
		}
	}
	return err
}

// CleanupSharedContainers terminates every shared container. Call it from
// TestMain after m.Run.
func CleanupSharedContainers() {
	mongoContainer.terminate()
	redisContainer.terminate()
	postgresContainer.terminate()
}
