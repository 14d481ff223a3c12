package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq" // postgres driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresUser     = "eventcore"
	postgresPassword = "eventcore"
	postgresDB       = "eventcore"
)

const postgresPort nat.Port = "5432/tcp"

var postgresContainer sharedContainer

func postgresRequest() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{string(postgresPort)},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout),
			wait.ForListeningPort(postgresPort).WithStartupTimeout(containerStartupTimeout),
		),
	}
}

// SetupTestPostgres returns a connection to a schema private to the test.
// The schema is dropped after the test.
func SetupTestPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := NewTestContext(t)

	addr, err := postgresContainer.get(context.Background(), postgresRequest(), postgresPort, nil)
	if err != nil {
		t.Fatalf("Failed to get shared PostgreSQL container: %v", err)
	}

	schema := strings.ToLower(generateTestDBName(t.Name()))
	admin, err := sql.Open("postgres", postgresDSN(addr, ""))
	if err != nil {
		t.Fatalf("Failed to open PostgreSQL: %v", err)
	}
	defer admin.Close()
	if err = retry(func() error { return admin.PingContext(ctx) }); err != nil {
		t.Fatalf("Failed to ping PostgreSQL: %v", err)
	}
	if _, err = admin.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	db, err := sql.Open("postgres", postgresDSN(addr, schema))
	if err != nil {
		t.Fatalf("Failed to open PostgreSQL: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), containerTerminateTimeout)
		defer cancel()
		_, _ = db.ExecContext(cleanupCtx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %q CASCADE`, schema))
		_ = db.Close()
	})

	return db
}

func postgresDSN(addr, schema string) string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", postgresUser, postgresPassword, addr, postgresDB)
	if schema != "" {
		dsn += "&search_path=" + schema
	}
	return dsn
}
