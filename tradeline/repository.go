package tradeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists tradelines per user.
type Repository interface {
	// InsertBatch stores items, skipping ones already ingested for the same
	// user, and returns the stored rows (existing ids for duplicates).
	InsertBatch(ctx context.Context, items []Tradeline) ([]Tradeline, error)
	Get(ctx context.Context, userID, id string) (Tradeline, error)
	List(ctx context.Context, userID string) ([]Tradeline, error)
	Purge(ctx context.Context, userID string) (int64, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const tradelineColumns = `id::text, user_id, report_id, creditor, bureau::text, item_type::text, amount_cents, reported_on, created_at`

func scanTradeline(row pgx.Row) (Tradeline, error) {
	var t Tradeline
	err := row.Scan(&t.ID, &t.UserID, &t.ReportID, &t.Creditor, &t.Bureau, &t.ItemType, &t.AmountCents, &t.ReportedOn, &t.CreatedAt)
	return t, err
}

func (r *PGRepository) InsertBatch(ctx context.Context, items []Tradeline) ([]Tradeline, error) {
	if len(items) == 0 {
		return nil, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tradeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The no-op update makes RETURNING yield the existing row on conflict.
	const query = `
		INSERT INTO tradelines (id, user_id, report_id, creditor, bureau, item_type, amount_cents, reported_on, created_at)
		VALUES ($1, $2, $3, $4, $5::bureau, $6::tradeline_item_type, $7, $8, $9)
		ON CONFLICT (user_id, bureau, creditor, item_type, reported_on)
		DO UPDATE SET creditor = EXCLUDED.creditor
		RETURNING ` + tradelineColumns

	out := make([]Tradeline, 0, len(items))
	for _, item := range items {
		stored, err := scanTradeline(tx.QueryRow(ctx, query,
			item.ID, item.UserID, item.ReportID, item.Creditor, string(item.Bureau), string(item.ItemType),
			item.AmountCents, item.ReportedOn, item.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("tradeline: insert: %w", err)
		}
		out = append(out, stored)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tradeline: commit insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, userID, id string) (Tradeline, error) {
	query := `SELECT ` + tradelineColumns + ` FROM tradelines WHERE id::text = $1 AND user_id = $2`
	t, err := scanTradeline(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tradeline{}, ErrNotFound
		}
		return Tradeline{}, fmt.Errorf("tradeline: get: %w", err)
	}
	return t, nil
}

func (r *PGRepository) List(ctx context.Context, userID string) ([]Tradeline, error) {
	query := `SELECT ` + tradelineColumns + ` FROM tradelines WHERE user_id = $1 ORDER BY reported_on DESC, creditor, bureau`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("tradeline: list: %w", err)
	}
	defer rows.Close()

	out := make([]Tradeline, 0, 8)
	for rows.Next() {
		t, err := scanTradeline(rows)
		if err != nil {
			return nil, fmt.Errorf("tradeline: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tradeline: iterate: %w", err)
	}
	return out, nil
}

// Purge removes every tradeline the user owns. Disputes, letters and
// timeline rows cascade with them.
func (r *PGRepository) Purge(ctx context.Context, userID string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("tradeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return 0, fmt.Errorf("tradeline: lock user: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tradelines WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("tradeline: purge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("tradeline: commit purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
