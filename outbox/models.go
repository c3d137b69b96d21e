// Package outbox relays rows written alongside dispute state changes to the
// event bus.
package outbox

import (
	"context"
	"time"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// Message is one pending outbox row.
type Message struct {
	ID           string
	Topic        string
	PartitionKey string
	Payload      []byte
	Attempts     int
	CreatedAt    time.Time
}

// Handler delivers one message. A nil error marks it processed.
type Handler func(ctx context.Context, msg Message) error

// Stats counts the outcome of one relay pass.
type Stats struct {
	Claimed   int
	Published int
	Failed    int
	Dead      int
}

// Store claims pending messages and records delivery results. Claimed rows
// stay locked against other relays until Process returns.
type Store interface {
	Process(ctx context.Context, limit, maxAttempts int, handle Handler) (Stats, error)
}

// Publisher sends one message to the event bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
