package tradeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeAnalyzer struct {
	items []Candidate
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, pdf []byte) ([]Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tl-%d", n)
	}
}

func amount(v int64) *int64 { return &v }

func newTestService(analyzer Analyzer) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	svc := NewService(repo, analyzer, time.Second, nil).
		WithIDGenerator(sequentialIDs()).
		WithClock(func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func TestService_IngestNormalizesCandidates(t *testing.T) {
	analyzer := &fakeAnalyzer{items: []Candidate{
		{Creditor: "Capital One", Bureau: "Equifax", ItemType: "Late Payment", ReportedOn: "Mar 2024", AmountCents: amount(12000)},
		{Creditor: "Midland Credit", Bureau: "Trans Union", ItemType: "collection", ReportedOn: "2023-11-04"},
		{Creditor: "Synchrony", Bureau: "experian", ItemType: "Charge-Off", ReportedOn: "2022-06"},
		{Creditor: "", Bureau: "experian", ItemType: "collection", ReportedOn: "2022-06"},
		{Creditor: "Mystery Bank", Bureau: "innovis", ItemType: "collection", ReportedOn: "2022-06"},
	}}
	svc, _ := newTestService(analyzer)

	res, err := svc.Ingest(context.Background(), "user-1", []byte("%PDF-1.7 report"))
	if err != nil {
		t.Fatalf("ingest: unexpected error: %v", err)
	}
	if res.Skipped != 2 {
		t.Fatalf("expected 2 skipped candidates, got %d", res.Skipped)
	}
	if len(res.Tradelines) != 3 {
		t.Fatalf("expected 3 tradelines, got %d", len(res.Tradelines))
	}

	first := res.Tradelines[0]
	if first.Bureau != BureauEquifax || first.ItemType != ItemLatePayment {
		t.Fatalf("unexpected normalization: %+v", first)
	}
	if got := first.ReportedOn.Format("2006-01-02"); got != "2024-03-01" {
		t.Fatalf("expected reported_on 2024-03-01, got %s", got)
	}
	if res.Tradelines[1].Bureau != BureauTransUnion {
		t.Fatalf("expected transunion, got %s", res.Tradelines[1].Bureau)
	}
	if res.Tradelines[2].ItemType != ItemChargeOff {
		t.Fatalf("expected charge_off, got %s", res.Tradelines[2].ItemType)
	}
	if first.ReportID != res.ReportID || res.ReportID == "" {
		t.Fatalf("expected report id on every row")
	}
}

func TestService_IngestIsIdempotentPerReport(t *testing.T) {
	analyzer := &fakeAnalyzer{items: []Candidate{
		{Creditor: "Capital One", Bureau: "equifax", ItemType: "late_payment", ReportedOn: "2024-03-01"},
	}}
	svc, _ := newTestService(analyzer)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, "user-1", []byte("%PDF-1.7 a"))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := svc.Ingest(ctx, "user-1", []byte("%PDF-1.7 a"))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first.Tradelines[0].ID != second.Tradelines[0].ID {
		t.Fatalf("expected duplicate ingest to return existing id %q, got %q", first.Tradelines[0].ID, second.Tradelines[0].ID)
	}

	all, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single stored tradeline, got %d", len(all))
	}
}

func TestService_IngestAnalyzerFailureWritesNothing(t *testing.T) {
	boom := errors.New("analyzer down")
	svc, repo := newTestService(&fakeAnalyzer{err: boom})

	if _, err := svc.Ingest(context.Background(), "user-1", []byte("%PDF-1.7")); !errors.Is(err, boom) {
		t.Fatalf("expected analyzer error, got %v", err)
	}
	items, _ := repo.List(context.Background(), "user-1")
	if len(items) != 0 {
		t.Fatalf("expected no tradelines stored, got %d", len(items))
	}
}

func TestService_GetScopedByUser(t *testing.T) {
	analyzer := &fakeAnalyzer{items: []Candidate{
		{Creditor: "Capital One", Bureau: "equifax", ItemType: "late_payment", ReportedOn: "2024-03-01"},
	}}
	svc, _ := newTestService(analyzer)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, "user-1", []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := svc.Get(ctx, "user-2", res.Tradelines[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across users, got %v", err)
	}
}

func TestService_PurgeRunsHooksFirst(t *testing.T) {
	analyzer := &fakeAnalyzer{items: []Candidate{
		{Creditor: "Capital One", Bureau: "equifax", ItemType: "late_payment", ReportedOn: "2024-03-01"},
		{Creditor: "Capital One", Bureau: "experian", ItemType: "late_payment", ReportedOn: "2024-03-01"},
	}}
	svc, _ := newTestService(analyzer)
	ctx := context.Background()
	if _, err := svc.Ingest(ctx, "user-1", []byte("%PDF-1.7")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var hooked []string
	svc.WithPurgeHook(func(ctx context.Context, userID string) error {
		hooked = append(hooked, userID)
		return nil
	})

	n, err := svc.Purge(ctx, "user-1")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 purged tradelines, got %d", n)
	}
	if len(hooked) != 1 || hooked[0] != "user-1" {
		t.Fatalf("expected purge hook for user-1, got %v", hooked)
	}
	if items, _ := svc.List(ctx, "user-1"); len(items) != 0 {
		t.Fatalf("expected no tradelines after purge, got %d", len(items))
	}
}

func TestParseBureau(t *testing.T) {
	cases := map[string]Bureau{
		"Equifax":     BureauEquifax,
		" experian ":  BureauExperian,
		"TransUnion":  BureauTransUnion,
		"trans_union": BureauTransUnion,
	}
	for raw, want := range cases {
		got, err := ParseBureau(raw)
		if err != nil {
			t.Fatalf("ParseBureau(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseBureau(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseBureau("innovis"); !errors.Is(err, ErrInvalidBureau) {
		t.Fatalf("expected ErrInvalidBureau, got %v", err)
	}
}
