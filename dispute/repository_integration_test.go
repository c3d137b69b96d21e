package dispute_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorevera/dispute"
	"scorevera/letter"
	"scorevera/test/harness"
	"scorevera/tradeline"
)

type pgFixture struct {
	h      *harness.Harness
	svc    *dispute.Service
	lines  *tradeline.PGRepository
	userID string
	tl     tradeline.Tradeline
	now    time.Time
	mu     sync.Mutex
}

func (f *pgFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *pgFixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in -short mode")
	}
	h := harness.Open(t)
	ctx := context.Background()
	require.NoError(t, h.Reset(ctx))

	f := &pgFixture{
		h:      h,
		lines:  tradeline.NewPGRepository(h.Pool()),
		userID: uuid.NewString(),
		now:    time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
	}
	stored, err := f.lines.InsertBatch(ctx, []tradeline.Tradeline{{
		ID:         uuid.NewString(),
		UserID:     f.userID,
		ReportID:   "report-1",
		Creditor:   "Midland Credit",
		Bureau:     tradeline.BureauExperian,
		ItemType:   tradeline.ItemCollection,
		ReportedOn: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:  f.now,
	}})
	require.NoError(t, err)
	f.tl = stored[0]
	f.svc = dispute.NewService(dispute.NewPGStore(h.Pool()), f.lines, letter.NewTemplateGenerator(), dispute.DefaultPolicy(), nil).
		WithClock(f.clock)
	return f
}

func (f *pgFixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.h.Pool().QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func TestPGStore_LifecycleWritesTimelineAndOutbox(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	v, err := f.svc.Create(ctx, f.userID, dispute.CreateParams{TradelineID: f.tl.ID})
	require.NoError(t, err)
	assert.Equal(t, tradeline.BureauExperian, v.Bureau)
	assert.Equal(t, 1, v.Round)

	_, l, err := f.svc.RequestLetter(ctx, f.userID, v.ID)
	require.NoError(t, err)
	assert.Contains(t, l.Body, "Midland Credit")

	v, err = f.svc.RecordMailed(ctx, f.userID, v.ID, f.clock())
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusAwaitingResponse, v.Status)
	require.NotNil(t, v.Deadline)
	assert.Equal(t, 30, v.Deadline.DaysLeft)

	v, err = f.svc.RecordOutcome(ctx, f.userID, v.ID, dispute.OutcomeParams{Outcome: dispute.OutcomeDeleted})
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusDeleted, v.Status)

	events, err := f.svc.Events(ctx, f.userID, v.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, dispute.EventCreated, events[0].Type)
	assert.Equal(t, dispute.EventOutcomeRecorded, events[len(events)-1].Type)
	assert.Equal(t, len(events), f.count(t, `SELECT COUNT(*) FROM outbox WHERE partition_key = $1`, f.userID))

	_, err = f.svc.Create(ctx, f.userID, dispute.CreateParams{TradelineID: f.tl.ID})
	var notEligible *dispute.RoundNotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.Equal(t, dispute.ReasonItemDeleted, notEligible.Reason)
}

func TestPGStore_ConcurrentCreateOpensOneDispute(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, f.userID, dispute.CreateParams{TradelineID: f.tl.ID})
			mu.Lock()
			defer mu.Unlock()
			var dup *dispute.DuplicateOpenDisputeError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &dup):
				dupes++
			default:
				t.Errorf("unexpected create error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, dupes)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM disputes WHERE tradeline_id = $1`, f.tl.ID))
}

func TestPGStore_CreateMaterializesExpiredRound(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.userID, dispute.CreateParams{TradelineID: f.tl.ID})
	require.NoError(t, err)
	_, _, err = f.svc.RequestLetter(ctx, f.userID, first.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordMailed(ctx, f.userID, first.ID, f.clock())
	require.NoError(t, err)

	f.advance(29 * 24 * time.Hour)
	_, err = f.svc.Create(ctx, f.userID, dispute.CreateParams{TradelineID: f.tl.ID})
	var dup *dispute.DuplicateOpenDisputeError
	require.ErrorAs(t, err, &dup)

	f.advance(24 * time.Hour)
	second, err := f.svc.Create(ctx, f.userID, dispute.CreateParams{TradelineID: f.tl.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Round)

	var stored string
	require.NoError(t, f.h.Pool().QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1`, first.ID).Scan(&stored))
	assert.Equal(t, string(dispute.StatusNoResponse), stored)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM dispute_events WHERE dispute_id = $1 AND type = $2`,
		first.ID, string(dispute.EventWindowExpired)))
}

func TestPGStore_UserScopingAndPurge(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	v, err := f.svc.Create(ctx, f.userID, dispute.CreateParams{TradelineID: f.tl.ID})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, uuid.NewString(), v.ID)
	assert.ErrorIs(t, err, dispute.ErrNotFound)
	_, err = f.svc.Create(ctx, uuid.NewString(), dispute.CreateParams{TradelineID: f.tl.ID})
	assert.ErrorIs(t, err, tradeline.ErrNotFound)

	removed, err := f.lines.Purge(ctx, f.userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	list, err := f.svc.List(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM dispute_events WHERE user_id = $1`, f.userID))
}
