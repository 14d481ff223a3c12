// Command verify_stream checks that event streams are gapless and ordered,
// and that their latest snapshot is not ahead of the stream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/config"
	"github.com/lllypuk/eventcore/internal/infrastructure/eventstore"
	"github.com/lllypuk/eventcore/internal/infrastructure/snapshotstore"
)

const verifyTimeout = 2 * time.Minute

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	streams := flag.String("streams", "", "Comma separated stream names, e.g. Account-<uuid>")
	asJSON := flag.Bool("json", false, "Print reports as JSON lines")
	flag.Parse()

	names := splitStreams(*streams)
	if len(names) == 0 {
		logger.Error("at least one stream is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	events, snapshots, closeFn, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open stores", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeFn()

	failed := false
	for _, stream := range names {
		report, verifyErr := eventstore.VerifyStream(ctx, events, snapshots, stream)
		if verifyErr != nil {
			logger.ErrorContext(ctx, "verification failed",
				slog.String("stream", stream),
				slog.String("error", verifyErr.Error()))
			failed = true
			continue
		}
		failed = failed || !report.OK()
		printReport(report, *asJSON)
	}

	if failed {
		os.Exit(1)
	}
}

func splitStreams(s string) []string {
	var out []string
	for name := range strings.SplitSeq(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func openStores(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (appcore.EventStore, appcore.SnapshotStore, func(), error) {
	var (
		events    appcore.EventStore
		snapshots appcore.SnapshotStore
		closers   []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.UsesMongoDB() {
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoDB.URI))
		if err != nil {
			return nil, nil, closeAll, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })

		if strings.EqualFold(cfg.EventStore.Backend, config.BackendMongoDB) {
			events = eventstore.NewMongoEventStore(client, cfg.MongoDB.Database, eventstore.WithLogger(logger))
		}
		if cfg.EventStore.SnapshotsEnabled && strings.EqualFold(cfg.EventStore.SnapshotStore, config.BackendMongoDB) {
			snapshots = snapshotstore.NewMongoSnapshotStore(client.Database(cfg.MongoDB.Database),
				snapshotstore.WithLogger(logger))
		}
	}

	if strings.EqualFold(cfg.EventStore.Backend, config.BackendPostgres) {
		pg := cfg.Postgres
		db, err := eventstore.ConnectPostgres(ctx, pg.DSN, pg.MaxOpenConns, pg.MaxIdleConns, pg.ConnMaxLifetime)
		if err != nil {
			return nil, nil, closeAll, err
		}
		closers = append(closers, func() { _ = db.Close() })
		events = eventstore.NewPostgresEventStore(db, eventstore.WithPostgresLogger(logger))
	}

	if events == nil {
		return nil, nil, closeAll, fmt.Errorf("backend %q keeps no durable streams", cfg.EventStore.Backend)
	}
	return events, snapshots, closeAll, nil
}

func printReport(report eventstore.StreamReport, asJSON bool) {
	if asJSON {
		data, _ := json.Marshal(report)
		fmt.Println(string(data))
		return
	}

	status := "OK"
	if !report.OK() {
		status = "INCONSISTENT"
	}
	fmt.Printf("%s: %s (%d events, last version %d)\n", report.Stream, status, report.Events, report.LastVersion)
	for _, v := range report.Violations {
		fmt.Printf("  version %d: %s\n", v.Version, v.Problem)
	}
}
