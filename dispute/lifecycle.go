package dispute

import (
	"fmt"
	"time"
)

// transitions is the complete edge set of the dispute lifecycle. Anything
// not listed here is rejected.
var transitions = map[Status][]Status{
	StatusDrafted:          {StatusLetterReady},
	StatusLetterReady:      {StatusMailed},
	StatusMailed:           {StatusAwaitingResponse},
	StatusAwaitingResponse: {StatusVerified, StatusDeleted, StatusNoResponse},
}

var transitionEvents = map[Status]EventType{
	StatusLetterReady:      EventLetterAttached,
	StatusMailed:           EventMailed,
	StatusAwaitingResponse: EventWindowOpened,
	StatusVerified:         EventOutcomeRecorded,
	StatusDeleted:          EventOutcomeRecorded,
	StatusNoResponse:       EventWindowExpired,
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func invalidTransition(rec Record, to Status) error {
	return &InvalidTransitionError{DisputeID: rec.ID, Current: rec.Status, Attempted: to}
}

// apply moves rec along one edge and returns the matching timeline event.
func apply(rec *Record, to Status, at time.Time, payload map[string]any) (Event, error) {
	if !CanTransition(rec.Status, to) {
		return Event{}, invalidTransition(*rec, to)
	}
	ev := Event{
		DisputeID: rec.ID,
		UserID:    rec.UserID,
		Type:      transitionEvents[to],
		From:      rec.Status,
		To:        to,
		Round:     rec.Round,
		At:        at,
		Payload:   payload,
	}
	rec.Status = to
	rec.UpdatedAt = at
	return ev, nil
}

func createdEvent(rec Record) Event {
	return Event{
		DisputeID: rec.ID,
		UserID:    rec.UserID,
		Type:      EventCreated,
		To:        rec.Status,
		Round:     rec.Round,
		At:        rec.CreatedAt,
		Payload: map[string]any{
			"tradeline_id": rec.TradelineID,
			"bureau":       string(rec.Bureau),
			"round":        rec.Round,
		},
	}
}

// The functions below are the lifecycle operations. Each works on a copy and
// only writes back to rec when every step succeeded.

func attachLetter(rec *Record, letterID string, at time.Time) ([]Event, error) {
	next := *rec
	next.LetterID = &letterID
	ev, err := apply(&next, StatusLetterReady, at, map[string]any{"letter_id": letterID})
	if err != nil {
		return nil, err
	}
	*rec = next
	return []Event{ev}, nil
}

func (p Policy) mail(rec *Record, mailedOn, now time.Time) ([]Event, error) {
	if !CanTransition(rec.Status, StatusMailed) {
		return nil, invalidTransition(*rec, StatusMailed)
	}
	mailed := Day(mailedOn)
	if mailed.After(Day(now)) {
		return nil, &InvalidDateError{Field: "mailed_on", Date: mailed, Reason: "is in the future"}
	}
	if mailed.Before(Day(rec.CreatedAt)) {
		return nil, &InvalidDateError{Field: "mailed_on", Date: mailed, Reason: "is before the dispute was created"}
	}

	next := *rec
	next.MailedOn = &mailed
	mailedEv, err := apply(&next, StatusMailed, now, map[string]any{"mailed_on": mailed.Format(dateLayout)})
	if err != nil {
		return nil, err
	}
	d := p.Track(mailed, now)
	openedEv, err := apply(&next, StatusAwaitingResponse, now, map[string]any{
		"due_on":      d.DueOn.Format(dateLayout),
		"window_days": p.WindowDays,
	})
	if err != nil {
		return nil, err
	}
	events := []Event{mailedEv, openedEv}
	// A backdated mail date can land past the window already.
	if ev, ok := p.expire(&next, now); ok {
		events = append(events, ev)
	}
	*rec = next
	return events, nil
}

func (p Policy) resolve(rec *Record, params OutcomeParams, now time.Time) ([]Event, error) {
	to, ok := params.Outcome.Status()
	if !ok {
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, params.Outcome)
	}
	if !CanTransition(rec.Status, to) {
		return nil, invalidTransition(*rec, to)
	}
	responded := Day(now)
	if params.RespondedOn != nil {
		responded = Day(*params.RespondedOn)
	}
	if responded.After(Day(now)) {
		return nil, &InvalidDateError{Field: "responded_on", Date: responded, Reason: "is in the future"}
	}
	if rec.MailedOn != nil && responded.Before(*rec.MailedOn) {
		return nil, &InvalidDateError{Field: "responded_on", Date: responded, Reason: "is before the letter was mailed"}
	}

	next := *rec
	next.RespondedOn = &responded
	ev, err := apply(&next, to, now, map[string]any{
		"outcome":      string(params.Outcome),
		"responded_on": responded.Format(dateLayout),
	})
	if err != nil {
		return nil, err
	}
	*rec = next
	return []Event{ev}, nil
}

// expire persists the lazy no_response reading of rec, if due.
func (p Policy) expire(rec *Record, now time.Time) (Event, bool) {
	if rec.Status != StatusAwaitingResponse || p.Effective(*rec, now) != StatusNoResponse {
		return Event{}, false
	}
	d := p.Track(*rec.MailedOn, now)
	ev, err := apply(rec, StatusNoResponse, now, map[string]any{"due_on": d.DueOn.Format(dateLayout)})
	if err != nil {
		return Event{}, false
	}
	return ev, true
}
