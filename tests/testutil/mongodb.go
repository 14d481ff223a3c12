package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventcore/internal/infrastructure/mongodb"
)

// MongoDB names are limited to 63 characters.
const maxTestNameLength = 40

const mongoPort nat.Port = "27017/tcp"

var mongoContainer sharedContainer

// mongoRequest runs a single-node replica set: the event store appends inside
// multi-document transactions, which standalone servers reject.
func mongoRequest() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "mongo:8",
		ExposedPorts: []string{string(mongoPort)},
		Cmd:          []string{"--replSet", "rs0", "--bind_ip_all"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(containerStartupTimeout),
	}
}

func initReplicaSet(ctx context.Context, cont testcontainers.Container, addr string) error {
	code, out, err := cont.Exec(ctx, []string{
		"mongosh", "--quiet", "--eval",
		"rs.initiate({_id: 'rs0', members: [{_id: 0, host: 'localhost:27017'}]})",
	})
	if err != nil {
		return fmt.Errorf("failed to initiate replica set: %w", err)
	}
	if code != 0 {
		msg, _ := io.ReadAll(out)
		return fmt.Errorf("rs.initiate exited with %d: %s", code, msg)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI(addr)))
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(ctx) }()

	return retry(func() error {
		var hello bson.M
		if errCmd := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); errCmd != nil {
			return errCmd
		}
		if primary, _ := hello["isWritablePrimary"].(bool); !primary {
			return errors.New("replica set has no primary yet")
		}
		return nil
	})
}

func mongoURI(addr string) string {
	return "mongodb://" + addr + "/?directConnection=true"
}

// SetupTestMongoDBWithClient returns a client connected to the shared replica
// set and an isolated database that is dropped after the test.
func SetupTestMongoDBWithClient(t *testing.T) (*mongo.Client, *mongo.Database) {
	t.Helper()
	ctx := NewTestContext(t)

	addr, err := mongoContainer.get(context.Background(), mongoRequest(), mongoPort, initReplicaSet)
	if err != nil {
		t.Fatalf("Failed to get shared MongoDB container: %v", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI(addr)))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err = retry(func() error { return client.Ping(ctx, nil) }); err != nil {
		t.Fatalf("Failed to ping MongoDB: %v", err)
	}

	db := client.Database(generateTestDBName(t.Name()))
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), containerTerminateTimeout)
		defer cancel()
		_ = db.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})

	return client, db
}

// SetupTestMongoDB returns an isolated database with all store indexes.
func SetupTestMongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	_, db := SetupTestMongoDBWithClient(t)
	if err := mongodb.CreateAllIndexes(NewTestContext(t), db); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}
	return db
}

// generateTestDBName creates a unique database name from test name
func generateTestDBName(testName string) string {
	hash := sha256.Sum256([]byte(testName))
	suffix := hex.EncodeToString(hash[:])[:12]

	name := make([]byte, 0, len(testName))
	for _, ch := range []byte(testName) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			name = append(name, ch)
		default:
			name = append(name, '_')
		}
	}
	if len(name) > maxTestNameLength {
		name = name[:maxTestNameLength]
	}
	return "eventcore_" + string(name) + "_" + suffix
}
