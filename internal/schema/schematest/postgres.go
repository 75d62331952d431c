// Package schematest starts a migrated PostgreSQL container for integration
// tests. Tests using it are skipped unless TEST_INTEGRATION is set.
package schematest

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/JaimeStill/docflow/internal/schema"
	"github.com/JaimeStill/docflow/pkg/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres returns a connection to a fresh, fully migrated database.
func Postgres(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("docflow_test"),
		postgres.WithUsername("docflow"),
		postgres.WithPassword("docflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	cfg := &database.Config{
		Host:     host,
		Name:     "docflow_test",
		User:     "docflow",
		Password: "docflow",
		SSLMode:  "disable",
	}
	cfg.Port, _ = strconv.Atoi(port.Port())

	m, err := database.NewMigrator(cfg, schema.Migrations())
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}
