package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"scorevera/letter"
	"scorevera/tradeline"
)

const (
	constraintOpenPerPair = "disputes_one_open_per_pair"
	constraintRoundUnique = "disputes_pair_round_key"
	constraintLetterOnce  = "letters_dispute_id_key"
)

// PGStore is the Postgres-backed Store. Write transactions take a
// transaction-scoped advisory lock on the user id.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const disputeColumns = `id::text, user_id, tradeline_id::text, bureau::text, round, status::text,
	letter_id, mailed_on, responded_on, created_at, updated_at`

const letterColumns = `id, dispute_id::text, user_id, round, bureau::text, creditor, body, model, created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.TradelineID, &rec.Bureau, &rec.Round, &rec.Status,
		&rec.LetterID, &rec.MailedOn, &rec.RespondedOn, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.MailedOn = utcDate(rec.MailedOn)
	rec.RespondedOn = utcDate(rec.RespondedOn)
	return rec, nil
}

func scanLetter(row pgx.Row) (letter.Letter, error) {
	var l letter.Letter
	err := row.Scan(&l.ID, &l.DisputeID, &l.UserID, &l.Round, &l.Bureau, &l.Creditor, &l.Body, &l.Model, &l.CreatedAt)
	return l, err
}

func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Day(*t)
	return &d
}

// validID guards uuid columns against malformed path parameters.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *PGStore) Begin(ctx context.Context, userID string) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispute: begin tx: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("dispute: lock user: %w", err)
	}
	return &pgTx{tx: tx, userID: userID}, nil
}

func (s *PGStore) Get(ctx context.Context, userID, disputeID string) (Record, error) {
	if !validID(disputeID) {
		return Record{}, ErrNotFound
	}
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 AND user_id = $2`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, disputeID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

func (s *PGStore) List(ctx context.Context, userID string) ([]Record, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE user_id = $1 ORDER BY created_at DESC, id`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func (s *PGStore) Events(ctx context.Context, userID, disputeID string) ([]Event, error) {
	if !validID(disputeID) {
		return nil, ErrNotFound
	}
	const query = `
		SELECT e.id::text, e.dispute_id::text, e.user_id, e.type, e.from_status, e.to_status, e.round, e.payload, e.created_at
		FROM dispute_events e
		WHERE e.dispute_id = $1 AND e.user_id = $2
		ORDER BY e.id
	`
	rows, err := s.pool.Query(ctx, query, disputeID, userID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 8)
	for rows.Next() {
		var (
			ev   Event
			from *string
		)
		if err := rows.Scan(&ev.ID, &ev.DisputeID, &ev.UserID, &ev.Type, &from, &ev.To, &ev.Round, &ev.Payload, &ev.At); err != nil {
			return nil, fmt.Errorf("dispute: scan event: %w", err)
		}
		if from != nil {
			ev.From = Status(*from)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate events: %w", err)
	}
	// Every dispute has a creation event, so none means no such dispute.
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PGStore) GetLetter(ctx context.Context, userID, letterID string) (letter.Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters WHERE id = $1 AND user_id = $2`
	l, err := scanLetter(s.pool.QueryRow(ctx, query, letterID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return letter.Letter{}, letter.ErrNotFound
		}
		return letter.Letter{}, fmt.Errorf("dispute: get letter: %w", err)
	}
	return l, nil
}

func (s *PGStore) ListLetters(ctx context.Context, userID string) ([]letter.Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters WHERE user_id = $1 ORDER BY created_at DESC, id`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list letters: %w", err)
	}
	defer rows.Close()

	out := make([]letter.Letter, 0, 8)
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan letter: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate letters: %w", err)
	}
	return out, nil
}

type pgTx struct {
	tx     pgx.Tx
	userID string
}

func (t *pgTx) GetForUpdate(ctx context.Context, disputeID string) (Record, error) {
	if !validID(disputeID) {
		return Record{}, ErrNotFound
	}
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 AND user_id = $2 FOR UPDATE`
	rec, err := scanRecord(t.tx.QueryRow(ctx, query, disputeID, t.userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: lock dispute: %w", err)
	}
	return rec, nil
}

func (t *pgTx) ListPair(ctx context.Context, tradelineID string, bureau tradeline.Bureau) ([]Record, error) {
	if !validID(tradelineID) {
		return nil, nil
	}
	query := `SELECT ` + disputeColumns + `
		FROM disputes
		WHERE user_id = $1 AND tradeline_id = $2 AND bureau = $3::bureau
		ORDER BY round
		FOR UPDATE`
	rows, err := t.tx.Query(ctx, query, t.userID, tradelineID, string(bureau))
	if err != nil {
		return nil, fmt.Errorf("dispute: list pair: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate pair: %w", err)
	}
	return out, nil
}

func (t *pgTx) Insert(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO disputes (id, user_id, tradeline_id, bureau, round, status, letter_id, mailed_on, responded_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4::bureau, $5, $6::dispute_status, $7, $8, $9, $10, $11)
	`
	_, err := t.tx.Exec(ctx, query, rec.ID, rec.UserID, rec.TradelineID, string(rec.Bureau), rec.Round, string(rec.Status),
		rec.LetterID, rec.MailedOn, rec.RespondedOn, rec.CreatedAt, rec.UpdatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == constraintOpenPerPair:
			return &DuplicateOpenDisputeError{TradelineID: rec.TradelineID, Bureau: rec.Bureau, OpenRound: rec.Round - 1}
		case pgErr.Code == "23505" && pgErr.ConstraintName == constraintRoundUnique:
			return &RoundNotEligibleError{TradelineID: rec.TradelineID, Bureau: rec.Bureau, Round: rec.Round, Reason: ReasonRoundExists}
		case pgErr.Code == "23503":
			return tradeline.ErrNotFound
		}
	}
	return fmt.Errorf("dispute: insert: %w", err)
}

func (t *pgTx) Update(ctx context.Context, rec Record) error {
	const query = `
		UPDATE disputes
		SET status = $3::dispute_status,
		    letter_id = $4,
		    mailed_on = $5,
		    responded_on = $6,
		    updated_at = $7
		WHERE id = $1 AND user_id = $2
	`
	tag, err := t.tx.Exec(ctx, query, rec.ID, t.userID, string(rec.Status), rec.LetterID, rec.MailedOn, rec.RespondedOn, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("dispute: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) GetLetter(ctx context.Context, letterID string) (letter.Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters WHERE id = $1 AND user_id = $2`
	l, err := scanLetter(t.tx.QueryRow(ctx, query, letterID, t.userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return letter.Letter{}, letter.ErrNotFound
		}
		return letter.Letter{}, fmt.Errorf("dispute: get letter: %w", err)
	}
	return l, nil
}

func (t *pgTx) InsertLetter(ctx context.Context, l letter.Letter) error {
	const query = `
		INSERT INTO letters (id, dispute_id, user_id, round, bureau, creditor, body, model, created_at)
		VALUES ($1, $2, $3, $4, $5::bureau, $6, $7, $8, $9)
	`
	_, err := t.tx.Exec(ctx, query, l.ID, l.DisputeID, l.UserID, l.Round, string(l.Bureau), l.Creditor, l.Body, l.Model, l.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraintLetterOnce {
			return fmt.Errorf("dispute: dispute %s already has a letter: %w", l.DisputeID, err)
		}
		return fmt.Errorf("dispute: insert letter: %w", err)
	}
	return nil
}

func (t *pgTx) Append(ctx context.Context, events ...Event) error {
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("dispute: encode event payload: %w", err)
		}
		var from *string
		if ev.From != "" {
			f := string(ev.From)
			from = &f
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO dispute_events (dispute_id, user_id, type, from_status, to_status, round, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		`, ev.DisputeID, ev.UserID, string(ev.Type), from, string(ev.To), ev.Round, string(payload), ev.At); err != nil {
			return fmt.Errorf("dispute: insert timeline: %w", err)
		}

		message, err := json.Marshal(outboxMessage(ev))
		if err != nil {
			return fmt.Errorf("dispute: encode outbox payload: %w", err)
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO outbox (id, topic, partition_key, payload)
			VALUES ($1, $2, $3, $4::jsonb)
		`, uuid.NewString(), ev.Topic(), ev.UserID, string(message)); err != nil {
			return fmt.Errorf("dispute: enqueue outbox: %w", err)
		}
	}
	return nil
}

func outboxMessage(ev Event) map[string]any {
	msg := map[string]any{
		"dispute_id": ev.DisputeID,
		"user_id":    ev.UserID,
		"type":       string(ev.Type),
		"to":         string(ev.To),
		"round":      ev.Round,
		"at":         ev.At.UTC().Format(time.RFC3339),
	}
	if ev.From != "" {
		msg["from"] = string(ev.From)
	}
	for k, v := range ev.Payload {
		if _, taken := msg[k]; !taken {
			msg[k] = v
		}
	}
	return msg
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
