package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Process claims up to limit pending rows with SKIP LOCKED, hands each to
// handle and records the result in the same transaction. A row that fails
// maxAttempts times is parked as dead.
func (r *Repository) Process(ctx context.Context, limit, maxAttempts int, handle Handler) (Stats, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id::text, topic, partition_key, payload, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY seq
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return Stats{}, fmt.Errorf("outbox: claim: %w", err)
	}
	claimed := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.PartitionKey, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("outbox: scan: %w", err)
		}
		claimed = append(claimed, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("outbox: iterate: %w", err)
	}

	stats := Stats{Claimed: len(claimed)}
	for _, m := range claimed {
		herr := handle(ctx, m)
		if herr == nil {
			if _, err := tx.Exec(ctx, `
				UPDATE outbox SET status = 'processed', processed_at = NOW(), last_attempt = NOW()
				WHERE id = $1
			`, m.ID); err != nil {
				return Stats{}, fmt.Errorf("outbox: mark processed: %w", err)
			}
			stats.Published++
			continue
		}

		next := StatusPending
		if m.Attempts+1 >= maxAttempts {
			next = StatusDead
			stats.Dead++
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET attempts = attempts + 1, last_error = $2, last_attempt = NOW(), status = $3
			WHERE id = $1
		`, m.ID, herr.Error(), next); err != nil {
			return Stats{}, fmt.Errorf("outbox: mark failed: %w", err)
		}
		stats.Failed++
	}

	if err := tx.Commit(ctx); err != nil {
		return Stats{}, fmt.Errorf("outbox: commit: %w", err)
	}
	return stats, nil
}
