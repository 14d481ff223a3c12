package healthcheck

import (
	"context"
	"database/sql"
	"time"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultPingTimeout bounds a single ping.
const DefaultPingTimeout = 2 * time.Second

// PingChecker is healthy while its backend answers a ping.
type PingChecker struct {
	name    string
	ping    func(ctx context.Context) error
	timeout time.Duration
}

// NewPingChecker wraps an arbitrary ping function.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: DefaultPingTimeout}
}

// NewMongoChecker pings the primary.
func NewMongoChecker(client *mongo.Client) *PingChecker {
	return NewPingChecker("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
}

// NewRedisChecker pings a Redis server.
func NewRedisChecker(client *redis.Client) *PingChecker {
	return NewPingChecker("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// NewPostgresChecker pings a PostgreSQL pool.
func NewPostgresChecker(db *sql.DB) *PingChecker {
	return NewPingChecker("postgres", db.PingContext)
}

// Name returns the name of this health checker.
func (c *PingChecker) Name() string {
	return c.name
}

// Check performs the health check.
func (c *PingChecker) Check(ctx context.Context) appcore.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.ping(ctx)
	latency := time.Since(start)

	status := appcore.HealthStatus{
		Healthy:   err == nil,
		Details:   map[string]any{"latency_ms": latency.Milliseconds()},
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Message = err.Error()
	}
	return status
}
