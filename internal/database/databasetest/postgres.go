// Package databasetest starts a throwaway Postgres for integration tests.
package databasetest

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emilythestrangee/devquery/backend/internal/database"
)

const image = "postgres:16-alpine"

// Start runs a migrated Postgres container for the lifetime of t. It skips
// the test under -short or when no container runtime is reachable.
func Start(t *testing.T) database.Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("devquery_test"),
		postgres.WithUsername("devquery"),
		postgres.WithPassword("devquery"),
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
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	db, err := database.New(ctx, dsn, database.Options{MaxOpenConns: 20, MaxIdleConns: 5})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(ctx, db.SQL()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
