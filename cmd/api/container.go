package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/application/eventsourcing"
	"github.com/lllypuk/eventcore/internal/application/saga"
	"github.com/lllypuk/eventcore/internal/config"
	"github.com/lllypuk/eventcore/internal/infrastructure/eventbus"
	"github.com/lllypuk/eventcore/internal/infrastructure/eventstore"
	"github.com/lllypuk/eventcore/internal/infrastructure/healthcheck"
	"github.com/lllypuk/eventcore/internal/infrastructure/metrics"
	mongodbinfra "github.com/lllypuk/eventcore/internal/infrastructure/mongodb"
	"github.com/lllypuk/eventcore/internal/infrastructure/sagastore"
	"github.com/lllypuk/eventcore/internal/infrastructure/snapshotstore"
)

// Container initialization timeouts.
const (
	containerInitTimeout   = 30 * time.Second
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
)

// Container holds the adapters selected by configuration and manages their
// lifecycle. Aggregate stores and sagas are built on top of it with
// StoreOptions and SagaOptions.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Metrics
	Registry     *prometheus.Registry
	StoreMetrics *metrics.StoreMetrics
	SagaMetrics  *metrics.SagaMetrics

	// Connections, nil when unused
	MongoDB  *mongo.Client
	Postgres *sql.DB
	Redis    *redis.Client

	// Adapters
	EventStore    appcore.EventStore
	SnapshotStore appcore.SnapshotStore // nil when snapshots are disabled
	SagaStore     appcore.SagaStore
	Dispatcher    appcore.Dispatcher // nil for dispatcher type "none"
	DeadLetters   *eventbus.DeadLetterHandler

	HealthCheckers []appcore.HealthChecker

	closers []func(ctx context.Context) error
}

// ContainerOption configures the Container.
type ContainerOption func(*Container)

// WithLogger sets a custom logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer connects the configured backends and builds the adapters.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	c.setupMetrics()

	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"mongodb", c.setupMongoDB},
		{"postgres", c.setupPostgres},
		{"event store", c.setupEventStore},
		{"snapshot store", c.setupSnapshotStore},
		{"saga store", c.setupSagaStore},
		{"dispatcher", c.setupDispatcher},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to setup %s: %w", step.name, err)
		}
	}

	c.Logger.InfoContext(ctx, "container initialized",
		slog.String("backend", cfg.EventStore.Backend),
		slog.Bool("snapshots", c.SnapshotStore != nil),
		slog.String("saga_store", cfg.Saga.Store),
		slog.String("dispatcher", cfg.Dispatcher.Type),
	)

	return c, nil
}

func (c *Container) setupMetrics() {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.StoreMetrics = metrics.NewStoreMetrics(c.Registry)
	c.SagaMetrics = metrics.NewSagaMetrics(c.Registry)
}

func (c *Container) setupMongoDB(ctx context.Context) error {
	if !c.Config.UsesMongoDB() {
		return nil
	}

	clientOpts := options.Client().
		ApplyURI(c.Config.MongoDB.URI).
		SetMaxPoolSize(c.Config.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.MongoDB = client
	c.closers = append(c.closers, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, mongoDisconnectTimeout)
		defer cancel()
		return client.Disconnect(ctx)
	})

	pingCtx, cancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer cancel()
	if err = client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}

	if err = mongodbinfra.CreateAllIndexes(ctx, c.mongoDatabase()); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	c.HealthCheckers = append(c.HealthCheckers, healthcheck.NewMongoChecker(client))
	c.Logger.InfoContext(ctx, "connected to MongoDB", slog.String("database", c.Config.MongoDB.Database))
	return nil
}

func (c *Container) setupPostgres(ctx context.Context) error {
	if !strings.EqualFold(c.Config.EventStore.Backend, config.BackendPostgres) {
		return nil
	}

	pg := c.Config.Postgres
	db, err := eventstore.ConnectPostgres(ctx, pg.DSN, pg.MaxOpenConns, pg.MaxIdleConns, pg.ConnMaxLifetime)
	if err != nil {
		return err
	}
	c.Postgres = db
	c.closers = append(c.closers, func(context.Context) error { return db.Close() })
	c.HealthCheckers = append(c.HealthCheckers, healthcheck.NewPostgresChecker(db))

	c.Logger.InfoContext(ctx, "connected to PostgreSQL")
	return nil
}

func (c *Container) setupEventStore(ctx context.Context) error {
	switch strings.ToLower(c.Config.EventStore.Backend) {
	case config.BackendMongoDB:
		c.EventStore = eventstore.NewMongoEventStore(
			c.MongoDB,
			c.Config.MongoDB.Database,
			eventstore.WithLogger(c.Logger),
		)
	case config.BackendPostgres:
		store := eventstore.NewPostgresEventStore(c.Postgres, eventstore.WithPostgresLogger(c.Logger))
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		c.EventStore = store
	default:
		c.EventStore = eventstore.NewInMemoryEventStore()
	}
	return nil
}

func (c *Container) setupSnapshotStore(context.Context) error {
	if !c.Config.EventStore.SnapshotsEnabled {
		return nil
	}
	if strings.EqualFold(c.Config.EventStore.SnapshotStore, config.BackendMongoDB) {
		c.SnapshotStore = snapshotstore.NewMongoSnapshotStore(c.mongoDatabase(), snapshotstore.WithLogger(c.Logger))
		return nil
	}
	c.SnapshotStore = snapshotstore.NewInMemorySnapshotStore()
	return nil
}

func (c *Container) setupSagaStore(context.Context) error {
	if strings.EqualFold(c.Config.Saga.Store, config.BackendMongoDB) {
		c.SagaStore = sagastore.NewMongoSagaStore(c.mongoDatabase(), sagastore.WithLogger(c.Logger))
		return nil
	}
	c.SagaStore = sagastore.NewInMemorySagaStore()
	return nil
}

func (c *Container) setupDispatcher(ctx context.Context) error {
	switch strings.ToLower(c.Config.Dispatcher.Type) {
	case config.DispatcherRedis:
		return c.setupRedisDispatcher(ctx)
	case config.DispatcherKafka:
		kafka := eventbus.NewKafkaDispatcher(
			c.Config.Kafka.Brokers,
			c.Config.Kafka.Topic,
			eventbus.WithKafkaLogger(c.Logger),
		)
		c.Dispatcher = kafka
		c.closers = append(c.closers, func(context.Context) error { return kafka.Close() })
	case config.DispatcherInMemory:
		bus := eventbus.NewInMemoryBus()
		if err := bus.Subscribe(eventbus.AllEvents, eventbus.NewLoggingHandler(c.Logger).AsEventHandler()); err != nil {
			return fmt.Errorf("failed to subscribe event logger: %w", err)
		}
		c.Dispatcher = bus
	}
	return nil
}

func (c *Container) setupRedisDispatcher(ctx context.Context) error {
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})
	client := c.Redis
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	c.DeadLetters = eventbus.NewDeadLetterHandler(client,
		eventbus.WithDeadLetterQueueKey(c.Config.Dispatcher.DeadLetterKey),
		eventbus.WithDeadLetterLogger(c.Logger),
	)
	bus := eventbus.NewRedisEventBus(client, nil,
		eventbus.WithLogger(c.Logger),
		eventbus.WithChannelPrefix(c.Config.Dispatcher.ChannelPrefix),
		eventbus.WithDeadLetterHandler(c.DeadLetters),
	)
	c.Dispatcher = bus
	c.closers = append(c.closers, func(context.Context) error { return bus.Shutdown() })

	c.HealthCheckers = append(c.HealthCheckers,
		healthcheck.NewRedisChecker(client),
		healthcheck.NewDeadLetterChecker(c.DeadLetters),
	)
	c.Logger.InfoContext(ctx, "connected to Redis", slog.String("addr", c.Config.Redis.Addr))
	return nil
}

func (c *Container) mongoDatabase() *mongo.Database {
	return c.MongoDB.Database(c.Config.MongoDB.Database)
}

// StoreOptions returns the eventsourcing options matching the configuration,
// for building aggregate stores over c.EventStore.
func (c *Container) StoreOptions() []eventsourcing.Option {
	opts := []eventsourcing.Option{
		eventsourcing.WithLogger(c.Logger),
		eventsourcing.WithMetrics(c.StoreMetrics),
	}
	if c.SnapshotStore != nil {
		opts = append(opts,
			eventsourcing.WithSnapshotStore(c.SnapshotStore),
			eventsourcing.WithSnapshotFrequency(c.Config.EventStore.SnapshotFrequency),
		)
	}
	if c.Dispatcher != nil {
		opts = append(opts, eventsourcing.WithDispatcher(c.Dispatcher))
	}
	return opts
}

// SagaOptions returns the saga options matching the configuration.
func (c *Container) SagaOptions() []saga.Option {
	return []saga.Option{
		saga.WithLogger(c.Logger),
		saga.WithMetrics(c.SagaMetrics),
		saga.WithStepRetries(c.Config.Saga.StepRetries),
		saga.WithRetryBackoff(c.Config.Saga.RetryBackoff),
	}
}

// Close releases resources in reverse order of initialization.
func (c *Container) Close() error {
	c.Logger.Info("closing container resources...")

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("all container resources closed")
	return nil
}
