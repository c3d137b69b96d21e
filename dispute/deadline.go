package dispute

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	day        = 24 * time.Hour

	DefaultWindowDays = 30
	DefaultMaxRounds  = 3
	DefaultUrgentDays = 7
)

// Policy holds the tunable rules of the lifecycle. MaxRounds 0 means
// unbounded.
type Policy struct {
	WindowDays int
	MaxRounds  int
	UrgentDays int
}

func DefaultPolicy() Policy {
	return Policy{WindowDays: DefaultWindowDays, MaxRounds: DefaultMaxRounds, UrgentDays: DefaultUrgentDays}
}

func (p Policy) Validate() error {
	if p.WindowDays <= 0 {
		return fmt.Errorf("dispute: window days must be positive, got %d", p.WindowDays)
	}
	if p.MaxRounds < 0 {
		return fmt.Errorf("dispute: max rounds must not be negative, got %d", p.MaxRounds)
	}
	if p.UrgentDays < 0 {
		return fmt.Errorf("dispute: urgent days must not be negative, got %d", p.UrgentDays)
	}
	return nil
}

// Deadline is the derived response window of a mailed dispute. It is never
// stored.
type Deadline struct {
	MailedOn        time.Time
	DueOn           time.Time
	WindowDays      int
	DaysElapsed     int
	DaysLeft        int
	ProgressPercent float64
	Expired         bool
	Urgent          bool
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Track computes the response window for a letter mailed on mailedOn as
// seen at now.
func (p Policy) Track(mailedOn, now time.Time) Deadline {
	mailed := Day(mailedOn)
	elapsed := 0
	if d := now.Sub(mailed); d > 0 {
		elapsed = int(d / day)
	}
	left := p.WindowDays - elapsed
	if left < 0 {
		left = 0
	}
	progress := 100 * float64(elapsed) / float64(p.WindowDays)
	if progress > 100 {
		progress = 100
	}
	return Deadline{
		MailedOn:        mailed,
		DueOn:           mailed.AddDate(0, 0, p.WindowDays),
		WindowDays:      p.WindowDays,
		DaysElapsed:     elapsed,
		DaysLeft:        left,
		ProgressPercent: progress,
		Expired:         left == 0,
		Urgent:          left > 0 && left <= p.UrgentDays,
	}
}

// Effective returns the status rec reads as at now: an awaiting_response
// dispute whose window has elapsed reads as no_response.
func (p Policy) Effective(rec Record, now time.Time) Status {
	if rec.Status == StatusAwaitingResponse && rec.MailedOn != nil && p.Track(*rec.MailedOn, now).Expired {
		return StatusNoResponse
	}
	return rec.Status
}

// View derives the read model of rec at now.
func (p Policy) View(rec Record, now time.Time) View {
	v := View{Record: rec, StoredStatus: rec.Status}
	v.Status = p.Effective(rec, now)
	if rec.Status == StatusAwaitingResponse && rec.MailedOn != nil {
		d := p.Track(*rec.MailedOn, now)
		v.Deadline = &d
	}
	return v
}
