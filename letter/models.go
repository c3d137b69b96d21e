package letter

import (
	"context"
	"errors"
	"time"

	"scorevera/tradeline"
)

var (
	ErrNotFound   = errors.New("letter: not found")
	ErrEmptyDraft = errors.New("letter: generator returned an empty letter")
)

// Request carries everything a generator needs to word one dispute letter.
type Request struct {
	DisputeID   string
	TradelineID string
	Creditor    string
	ItemType    tradeline.ItemType
	Bureau      tradeline.Bureau
	Round       int
	ReportedOn  time.Time
	AmountCents *int64
	Today       time.Time
}

// Draft is a generator's output. ID is optional; the engine assigns one
// when the generator does not.
type Draft struct {
	ID    string
	Body  string
	Model string
}

// Generator produces a dispute letter. Implementations may call remote
// services and must honour ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (Draft, error)
}

// Letter is a stored dispute letter. Exactly one exists per dispute.
type Letter struct {
	ID        string
	DisputeID string
	UserID    string
	Round     int
	Bureau    tradeline.Bureau
	Creditor  string
	Body      string
	Model     string
	CreatedAt time.Time
}
