package dispute

import (
	"context"

	"scorevera/letter"
	"scorevera/tradeline"
)

// Store persists disputes, their letters and timeline per user. Reads go
// straight to the store; every write goes through a Tx.
type Store interface {
	// Begin opens a write transaction holding the user's lock until Commit
	// or Rollback. Only one write transaction per user runs at a time.
	Begin(ctx context.Context, userID string) (Tx, error)

	Get(ctx context.Context, userID, disputeID string) (Record, error)
	List(ctx context.Context, userID string) ([]Record, error)
	Events(ctx context.Context, userID, disputeID string) ([]Event, error)
	GetLetter(ctx context.Context, userID, letterID string) (letter.Letter, error)
	ListLetters(ctx context.Context, userID string) ([]letter.Letter, error)
}

// Tx is a per-user write transaction. Rollback after Commit is a no-op.
type Tx interface {
	GetForUpdate(ctx context.Context, disputeID string) (Record, error)
	// ListPair returns the pair's disputes ordered by round.
	ListPair(ctx context.Context, tradelineID string, bureau tradeline.Bureau) ([]Record, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	GetLetter(ctx context.Context, letterID string) (letter.Letter, error)
	InsertLetter(ctx context.Context, l letter.Letter) error
	// Append writes timeline rows and their outbox messages.
	Append(ctx context.Context, events ...Event) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TradelineReader resolves the tradeline a dispute challenges.
type TradelineReader interface {
	Get(ctx context.Context, userID, id string) (tradeline.Tradeline, error)
}
