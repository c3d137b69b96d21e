package external

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCall_Success(t *testing.T) {
	got, err := Call(context.Background(), "letter generator", time.Second, func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected deadline on call context")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
}

func TestCall_DeadlineBecomesTimeoutError(t *testing.T) {
	_, err := Call(context.Background(), "report analyzer", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if te.Service != "report analyzer" {
		t.Fatalf("unexpected service %q", te.Service)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error")
	}
}

func TestCall_PassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Call(context.Background(), "letter generator", time.Second, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if IsTimeout(err) {
		t.Fatalf("boom must not classify as timeout")
	}
}

func TestCall_ParentCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, "letter generator", time.Second, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsTimeout(err) {
		t.Fatalf("cancellation must not classify as timeout")
	}
}
