package dispute

import (
	"time"

	"scorevera/tradeline"
)

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusDrafted          Status = "drafted"
	StatusLetterReady      Status = "letter_ready"
	StatusMailed           Status = "mailed"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusVerified         Status = "verified"
	StatusDeleted          Status = "deleted"
	StatusNoResponse       Status = "no_response"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDrafted, StatusLetterReady, StatusMailed, StatusAwaitingResponse,
		StatusVerified, StatusDeleted, StatusNoResponse:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusVerified, StatusDeleted, StatusNoResponse:
		return true
	}
	return false
}

// Open is the inverse of Terminal for valid statuses.
func (s Status) Open() bool {
	return s.Valid() && !s.Terminal()
}

// OpenStatuses lists the non-terminal statuses.
var OpenStatuses = []Status{StatusDrafted, StatusLetterReady, StatusMailed, StatusAwaitingResponse}

// Outcome is a bureau response the user can record.
type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeDeleted  Outcome = "deleted"
)

func (o Outcome) Status() (Status, bool) {
	switch o {
	case OutcomeVerified:
		return StatusVerified, true
	case OutcomeDeleted:
		return StatusDeleted, true
	}
	return "", false
}

// Record mirrors the disputes table.
type Record struct {
	ID          string
	UserID      string
	TradelineID string
	Bureau      tradeline.Bureau
	Round       int
	Status      Status
	LetterID    *string
	MailedOn    *time.Time
	RespondedOn *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// View is a Record as read at a given instant: Status is the effective
// status (an elapsed window reads as no_response) and Deadline is set while
// the stored status is awaiting_response.
type View struct {
	Record
	StoredStatus Status
	Deadline     *Deadline
}

// EventType names a timeline entry.
type EventType string

const (
	EventCreated         EventType = "DISPUTE_CREATED"
	EventLetterAttached  EventType = "LETTER_ATTACHED"
	EventMailed          EventType = "DISPUTE_MAILED"
	EventWindowOpened    EventType = "RESPONSE_WINDOW_OPENED"
	EventOutcomeRecorded EventType = "OUTCOME_RECORDED"
	EventWindowExpired   EventType = "RESPONSE_WINDOW_EXPIRED"
)

// Outbox topics.
const (
	TopicCreated       = "dispute.created"
	TopicStatusChanged = "dispute.status_changed"
)

// Event is one append-only timeline row. From is empty for creation.
type Event struct {
	ID        string
	DisputeID string
	UserID    string
	Type      EventType
	From      Status
	To        Status
	Round     int
	At        time.Time
	Payload   map[string]any
}

// Topic is the outbox topic the event is relayed on.
func (e Event) Topic() string {
	if e.Type == EventCreated {
		return TopicCreated
	}
	return TopicStatusChanged
}

// CreateParams opens a dispute. Bureau defaults to the tradeline's bureau;
// Round 0 means the next eligible round.
type CreateParams struct {
	TradelineID string
	Bureau      tradeline.Bureau
	Round       int
}

// OutcomeParams records a bureau response. RespondedOn defaults to today.
type OutcomeParams struct {
	Outcome     Outcome
	RespondedOn *time.Time
}
