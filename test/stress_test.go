package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scorevera/dispute"
	"scorevera/letter"
	"scorevera/outbox"
	"scorevera/test/actors"
	"scorevera/test/chaos"
	"scorevera/test/infra"
	"scorevera/test/oracles"
	"scorevera/tradeline"
)

var (
	flDuration    = flag.Duration("duration", 30*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 4, "openers and progressors per user")
	flUsers       = flag.Int("users", 3, "number of seeded users")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestDisputeConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress run skipped in -short mode")
	}
	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv(infra.EnvDSN) != "":
		dsn = os.Getenv(infra.EnvDSN)
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if infra.DockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no database available: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared, 40)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	clock := actors.NewClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	users := mustSeed(t, ctx, pool, *flUsers, clock.Now())

	tradelines := tradeline.NewPGRepository(pool)
	svc := dispute.NewService(dispute.NewPGStore(pool), tradelines, letter.NewTemplateGenerator(), dispute.DefaultPolicy(), zap.NewNop()).
		WithClock(clock.Now)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	var counters actors.Counters

	// openers and progressors race on the same pairs of each user
	for userID, ids := range users {
		for i := 0; i < *flConcurrency; i++ {
			g.Go(func() error { return actors.Opener(ctx2, svc, userID, ids, &counters, stop) })
			g.Go(func() error { return actors.Progressor(ctx2, svc, userID, clock, &counters, stop) })
		}
	}
	g.Go(func() error { return actors.Ticker(ctx2, clock, 50*time.Millisecond, stop) })
	g.Go(func() error { return actors.OutboxWorker(ctx2, outbox.NewRepository(pool), stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, time.Second, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if checkOracles(t, ctx2, pool) {
				failed = true
				break loop
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
	if !failed {
		checkOracles(t, context.Background(), pool)
	}
	t.Logf("stress done: %s", counters.String())
}

// checkOracles reports whether an invariant failed. Query errors caused by
// chaos killing the connection are logged and retried on the next tick.
func checkOracles(t *testing.T, ctx context.Context, pool *pgxpool.Pool) bool {
	t.Helper()
	name, row, err := oracles.Run(ctx, pool)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Logf("oracle error: %v", err)
		}
		return false
	}
	if name != "" {
		dumpRecent(t, context.Background(), pool)
		t.Errorf("Oracle %s failed. First row: %s", name, row)
		return true
	}
	return false
}

// mustSeed inserts tradelines for n users, each across all three bureaus,
// and returns their IDs keyed by user.
func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, n int, now time.Time) map[string][]string {
	t.Helper()
	repo := tradeline.NewPGRepository(pool)
	out := make(map[string][]string, n)
	for i := 0; i < n; i++ {
		userID := uuid.NewString()
		items := make([]tradeline.Tradeline, 0, 2*len(tradeline.Bureaus))
		for j, b := range tradeline.Bureaus {
			for k, typ := range []tradeline.ItemType{tradeline.ItemCollection, tradeline.ItemLatePayment} {
				items = append(items, tradeline.Tradeline{
					ID:         uuid.NewString(),
					UserID:     userID,
					ReportID:   fmt.Sprintf("stress-%d", i),
					Creditor:   fmt.Sprintf("Creditor %d-%d", j, k),
					Bureau:     b,
					ItemType:   typ,
					ReportedOn: now.AddDate(0, -6-j, 0),
					CreatedAt:  now,
				})
			}
		}
		stored, err := repo.InsertBatch(ctx, items)
		if err != nil {
			t.Fatalf("seed tradelines: %v", err)
		}
		for _, tl := range stored {
			out[userID] = append(out[userID], tl.ID)
		}
	}
	return out
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"disputes", `SELECT id, tradeline_id, bureau, round, status, letter_id, mailed_on, responded_on FROM disputes ORDER BY updated_at DESC LIMIT 50`},
		{"dispute_events", `SELECT id, dispute_id, type, from_status, to_status, round FROM dispute_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT seq, topic, status, attempts, created_at FROM outbox ORDER BY seq DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
