// Package harness hands integration tests a migrated Postgres pool.
package harness

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"scorevera/test/infra"
)

// Harness owns the lifecycle of the database, its isolated schema and the
// pgx pool.
type Harness struct {
	container *infra.PGContainer
	pool      *pgxpool.Pool
	teardown  func(context.Context) error
	dsn       string
}

// Open returns a harness with every migration applied in a fresh schema. It
// reuses SCOREVERA_TEST_PG_DSN or DATABASE_URL when set, otherwise it starts
// a container; without either the test is skipped.
func Open(t testing.TB) *Harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := os.Getenv(infra.EnvDSN)
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" && !infra.DockerAvailable(ctx) {
		t.Skip("no database: set " + infra.EnvDSN + " or DATABASE_URL, or make docker available")
	}

	h, err := start(ctx, dsn)
	if err != nil {
		t.Fatalf("start harness: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func start(ctx context.Context, dsn string) (*Harness, error) {
	container, dsn, err := infra.StartPostgres16(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, true, 32)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Harness{container: container, pool: pool, teardown: teardown, dsn: dsn}, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections.
func (h *Harness) DSN() string {
	return h.dsn
}

// Close drops the schema and tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates mutable tables to provide a clean slate.
func (h *Harness) Reset(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, `TRUNCATE TABLE outbox, dispute_events, letters, disputes, tradelines, users CASCADE`)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}
