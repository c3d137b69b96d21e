// Package actors drives the dispute services concurrently against a shared
// database for the stress suite.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"scorevera/dispute"
	"scorevera/outbox"
)

// Clock is a shared, manually advanced time source so response windows
// elapse within a short run.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Counters tallies outcomes across actors. Conflicts are expected under
// contention; Internal counts infrastructure failures such as killed
// connections.
type Counters struct {
	OK       atomic.Int64
	Conflict atomic.Int64
	Input    atomic.Int64
	Internal atomic.Int64
}

func (c *Counters) String() string {
	return fmt.Sprintf("ok=%d conflict=%d input=%d internal=%d",
		c.OK.Load(), c.Conflict.Load(), c.Input.Load(), c.Internal.Load())
}

func (c *Counters) record(err error) {
	if err == nil {
		c.OK.Add(1)
		return
	}
	switch dispute.Classify(err) {
	case dispute.KindConflict:
		c.Conflict.Add(1)
	case dispute.KindInput, dispute.KindNotFound:
		c.Input.Add(1)
	default:
		c.Internal.Add(1)
	}
}

func pause(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// Opener keeps trying to open disputes for the user's tradelines, racing
// other openers for the same (tradeline, bureau) pairs.
func Opener(ctx context.Context, svc *dispute.Service, userID string, tradelineIDs []string, counters *Counters, stop <-chan struct{}) error {
	for {
		id := tradelineIDs[rand.Intn(len(tradelineIDs))]
		_, err := svc.Create(ctx, userID, dispute.CreateParams{TradelineID: id})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		counters.record(err)
		if !pause(ctx, stop, time.Duration(5+rand.Intn(15))*time.Millisecond) {
			return nil
		}
	}
}

// Progressor advances a random dispute one step along the lifecycle, or
// tries an out-of-order step to exercise rejection.
func Progressor(ctx context.Context, svc *dispute.Service, userID string, clock *Clock, counters *Counters, stop <-chan struct{}) error {
	for {
		views, err := svc.List(ctx, userID)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err == nil && len(views) > 0 {
			v := views[rand.Intn(len(views))]
			err = step(ctx, svc, userID, v, clock)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			counters.record(err)
		}
		if !pause(ctx, stop, time.Duration(5+rand.Intn(20))*time.Millisecond) {
			return nil
		}
	}
}

func step(ctx context.Context, svc *dispute.Service, userID string, v dispute.View, clock *Clock) error {
	// One in ten steps is deliberately out of order.
	if rand.Intn(10) == 0 {
		_, err := svc.RecordOutcome(ctx, userID, v.ID, dispute.OutcomeParams{Outcome: dispute.OutcomeVerified})
		return err
	}
	switch v.Status {
	case dispute.StatusDrafted:
		_, _, err := svc.RequestLetter(ctx, userID, v.ID)
		return err
	case dispute.StatusLetterReady:
		_, err := svc.RecordMailed(ctx, userID, v.ID, clock.Now())
		return err
	case dispute.StatusAwaitingResponse:
		outcome := dispute.OutcomeVerified
		if rand.Intn(4) == 0 {
			outcome = dispute.OutcomeDeleted
		}
		_, err := svc.RecordOutcome(ctx, userID, v.ID, dispute.OutcomeParams{Outcome: outcome})
		return err
	}
	return nil
}

// Ticker advances the shared clock by a day at every interval so windows
// expire during the run.
func Ticker(ctx context.Context, clock *Clock, every time.Duration, stop <-chan struct{}) error {
	for pause(ctx, stop, every) {
		clock.Advance(24 * time.Hour)
	}
	return nil
}

type flakyPublisher struct{}

func (flakyPublisher) Publish(context.Context, outbox.Message) error {
	if rand.Intn(10) == 0 {
		return errors.New("simulated broker failure")
	}
	return nil
}

// OutboxWorker drains the outbox through a publisher that fails one message
// in ten.
func OutboxWorker(ctx context.Context, store outbox.Store, stop <-chan struct{}) error {
	relay := outbox.NewRelay(store, flakyPublisher{}, 100*time.Millisecond, 20, 5, nil)
	for {
		if _, err := relay.RunOnce(ctx); err != nil && ctx.Err() != nil {
			return nil
		}
		if !pause(ctx, stop, 100*time.Millisecond) {
			return nil
		}
	}
}
