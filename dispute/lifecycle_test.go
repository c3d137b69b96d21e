package dispute

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scorevera/tradeline"
)

var allStatuses = []Status{
	StatusDrafted, StatusLetterReady, StatusMailed, StatusAwaitingResponse,
	StatusVerified, StatusDeleted, StatusNoResponse,
}

func TestCanTransition_OnlyListedEdges(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusDrafted, StatusLetterReady}:         true,
		{StatusLetterReady, StatusMailed}:          true,
		{StatusMailed, StatusAwaitingResponse}:     true,
		{StatusAwaitingResponse, StatusVerified}:   true,
		{StatusAwaitingResponse, StatusDeleted}:    true,
		{StatusAwaitingResponse, StatusNoResponse}: true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if got, want := CanTransition(from, to), allowed[[2]Status{from, to}]; got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestApply_RejectedEdgeLeavesRecordUntouched(t *testing.T) {
	now := date(2026, 2, 1)
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if CanTransition(from, to) {
				continue
			}
			rec := Record{ID: "d-1", Status: from, Round: 1, UpdatedAt: now}
			before := rec
			_, err := apply(&rec, to, now.Add(time.Hour), nil)
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Fatalf("%s -> %s: expected InvalidTransitionError, got %v", from, to, err)
			}
			if invalid.Current != from || invalid.Attempted != to {
				t.Fatalf("%s -> %s: error names %s -> %s", from, to, invalid.Current, invalid.Attempted)
			}
			if diff := cmp.Diff(before, rec); diff != "" {
				t.Fatalf("%s -> %s mutated record (-want +got):\n%s", from, to, diff)
			}
		}
	}
}

func TestStatus_TerminalAndOpenPartition(t *testing.T) {
	for _, s := range allStatuses {
		if s.Terminal() == s.Open() {
			t.Fatalf("status %s must be exactly one of open or terminal", s)
		}
		if s.Terminal() && len(transitions[s]) != 0 {
			t.Fatalf("terminal status %s has outgoing edges", s)
		}
	}
	if Status("archived").Open() {
		t.Fatal("unknown status must not read as open")
	}
}

func TestPolicy_TrackDeadline(t *testing.T) {
	p := DefaultPolicy()
	mailed := date(2026, 2, 10)

	got := p.Track(mailed, date(2026, 2, 20).Add(13*time.Hour))
	want := Deadline{
		MailedOn:        mailed,
		DueOn:           date(2026, 3, 12),
		WindowDays:      30,
		DaysElapsed:     10,
		DaysLeft:        20,
		ProgressPercent: 100 * 10.0 / 30.0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Track mismatch (-want +got):\n%s", diff)
	}

	urgent := p.Track(mailed, date(2026, 3, 6))
	if !urgent.Urgent || urgent.DaysLeft != 6 {
		t.Fatalf("expected urgent with 6 days left, got %+v", urgent)
	}
}

func TestPolicy_DaysLeftMonotonicAndExactBoundary(t *testing.T) {
	p := DefaultPolicy()
	mailed := date(2026, 2, 10)
	due := mailed.AddDate(0, 0, p.WindowDays)

	prev := p.WindowDays + 1
	for at := mailed.Add(-12 * time.Hour); at.Before(due.AddDate(0, 0, 10)); at = at.Add(5 * time.Hour) {
		d := p.Track(mailed, at)
		if d.DaysLeft > prev {
			t.Fatalf("daysLeft increased at %s: %d > %d", at, d.DaysLeft, prev)
		}
		if d.ProgressPercent < 0 || d.ProgressPercent > 100 {
			t.Fatalf("progress out of range at %s: %v", at, d.ProgressPercent)
		}
		prev = d.DaysLeft
	}

	if d := p.Track(mailed, due.Add(-time.Nanosecond)); d.DaysLeft != 1 || d.Expired {
		t.Fatalf("expected 1 day left just before due, got %+v", d)
	}
	if d := p.Track(mailed, due); d.DaysLeft != 0 || !d.Expired {
		t.Fatalf("expected expiry exactly at due date, got %+v", d)
	}

	rec := Record{Status: StatusAwaitingResponse, MailedOn: &mailed}
	if got := p.Effective(rec, due.Add(-time.Second)); got != StatusAwaitingResponse {
		t.Fatalf("expected awaiting_response before due, got %s", got)
	}
	if got := p.Effective(rec, due); got != StatusNoResponse {
		t.Fatalf("expected no_response at due, got %s", got)
	}
}

func TestPolicy_CustomWindow(t *testing.T) {
	p := Policy{WindowDays: 45, UrgentDays: 7}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	d := p.Track(date(2026, 1, 1), date(2026, 2, 15))
	if d.DaysLeft != 0 || d.DueOn != date(2026, 2, 15) {
		t.Fatalf("unexpected 45 day window: %+v", d)
	}
	if err := (Policy{WindowDays: 0}).Validate(); err == nil {
		t.Fatal("expected zero window to be rejected")
	}
	if err := (Policy{WindowDays: 30, MaxRounds: -1}).Validate(); err == nil {
		t.Fatal("expected negative round cap to be rejected")
	}
}

func TestPolicy_NextRoundRejectsGaps(t *testing.T) {
	p := DefaultPolicy()
	existing := []Record{
		{ID: "a", Round: 1, Status: StatusVerified},
		{ID: "c", Round: 3, Status: StatusVerified},
	}
	if _, err := p.nextRound("tl-1", tradeline.BureauEquifax, existing, 0, date(2026, 2, 1)); err == nil {
		t.Fatal("expected non-contiguous history to be reported")
	}

	existing = []Record{
		{ID: "b", Round: 2, Status: StatusNoResponse},
		{ID: "a", Round: 1, Status: StatusVerified},
	}
	round, err := p.nextRound("tl-1", tradeline.BureauEquifax, existing, 0, date(2026, 2, 1))
	if err != nil {
		t.Fatalf("nextRound: %v", err)
	}
	if round != 3 {
		t.Fatalf("expected round 3, got %d", round)
	}

	_, err = p.nextRound("tl-1", tradeline.BureauEquifax, existing, 2, date(2026, 2, 1))
	var notEligible *RoundNotEligibleError
	if !errors.As(err, &notEligible) || notEligible.Reason != ReasonRoundExists {
		t.Fatalf("expected round_exists, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{&InvalidDateError{Field: "mailed_on"}, KindInput},
		{ErrInvalidInput, KindInput},
		{&InvalidTransitionError{}, KindConflict},
		{&RoundNotEligibleError{}, KindConflict},
		{&DuplicateOpenDisputeError{}, KindConflict},
		{ErrNotFound, KindNotFound},
		{tradeline.ErrNotFound, KindNotFound},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
