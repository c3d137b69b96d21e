// Package external holds the call discipline shared by every request/response
// collaborator the engine depends on (report analyzer, letter generator).
package external

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// TimeoutError reports that a collaborator did not answer within its budget.
// Nothing is committed when it is returned, so callers may retry.
type TimeoutError struct {
	Service string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s: no response within %s", e.Service, e.Timeout)
	}
	return fmt.Sprintf("%s: no response", e.Service)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Call runs fn under a deadline of timeout (no deadline when timeout <= 0).
// Deadline expiry and network timeouts surface as *TimeoutError; cancellation
// of the parent context is passed through untouched.
func Call[T any](ctx context.Context, service string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := fn(callCtx)
	if err == nil {
		return out, nil
	}

	var zero T
	if IsTimeout(err) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var te *TimeoutError
		if errors.As(err, &te) {
			return zero, err
		}
		return zero, &TimeoutError{Service: service, Timeout: timeout, Err: err}
	}
	return zero, err
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
