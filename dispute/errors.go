package dispute

import (
	"errors"
	"fmt"
	"time"

	"scorevera/external"
	"scorevera/letter"
	"scorevera/tradeline"
)

var (
	ErrNotFound     = errors.New("dispute: not found")
	ErrInvalidInput = errors.New("dispute: invalid input")
)

// InvalidTransitionError is returned when an operation would move a dispute
// along an edge the lifecycle does not allow. Nothing is mutated.
type InvalidTransitionError struct {
	DisputeID string
	Current   Status
	Attempted Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("dispute: cannot move %s from %s to %s", e.DisputeID, e.Current, e.Attempted)
}

// EligibilityReason explains why a round cannot be opened.
type EligibilityReason string

const (
	ReasonPriorRoundOpen EligibilityReason = "prior_round_open"
	ReasonItemDeleted    EligibilityReason = "item_deleted"
	ReasonRoundExists    EligibilityReason = "round_exists"
	ReasonRoundGap       EligibilityReason = "round_gap"
	ReasonRoundLimit     EligibilityReason = "round_limit"
)

// RoundNotEligibleError is returned when the requested round cannot be opened
// for a (tradeline, bureau) pair.
type RoundNotEligibleError struct {
	TradelineID string
	Bureau      tradeline.Bureau
	Round       int
	Reason      EligibilityReason
}

func (e *RoundNotEligibleError) Error() string {
	return fmt.Sprintf("dispute: round %d not eligible for tradeline %s at %s: %s", e.Round, e.TradelineID, e.Bureau, e.Reason)
}

// DuplicateOpenDisputeError is returned when the pair already has an open
// dispute. It unwraps to a RoundNotEligibleError.
type DuplicateOpenDisputeError struct {
	TradelineID   string
	Bureau        tradeline.Bureau
	OpenDisputeID string
	OpenRound     int
	OpenStatus    Status
}

func (e *DuplicateOpenDisputeError) Error() string {
	return fmt.Sprintf("dispute: tradeline %s already has open dispute %s (round %d, %s) at %s",
		e.TradelineID, e.OpenDisputeID, e.OpenRound, e.OpenStatus, e.Bureau)
}

func (e *DuplicateOpenDisputeError) Unwrap() error {
	return &RoundNotEligibleError{
		TradelineID: e.TradelineID,
		Bureau:      e.Bureau,
		Round:       e.OpenRound + 1,
		Reason:      ReasonPriorRoundOpen,
	}
}

// InvalidDateError rejects a user supplied date.
type InvalidDateError struct {
	Field  string
	Date   time.Time
	Reason string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("dispute: invalid %s %s: %s", e.Field, e.Date.Format(dateLayout), e.Reason)
}

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindConflict
	KindRetry
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindRetry:
		return "retry"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	var (
		transition *InvalidTransitionError
		round      *RoundNotEligibleError
		date       *InvalidDateError
		timeout    *external.TimeoutError
	)
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &date),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, tradeline.ErrInvalidBureau),
		errors.Is(err, tradeline.ErrInvalidCandidate):
		return KindInput
	case errors.As(err, &transition), errors.As(err, &round):
		return KindConflict
	case errors.As(err, &timeout):
		return KindRetry
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tradeline.ErrNotFound),
		errors.Is(err, letter.ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}
