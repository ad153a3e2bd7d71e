// Package wait provides the poll-with-timeout primitive used by every
// waiting step: explicit waits, visibility checks before actions, and
// assertions.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	apiwait "k8s.io/apimachinery/pkg/util/wait"
)

// DefaultInterval is the polling cadence used when callers pass zero.
const DefaultInterval = 100 * time.Millisecond

// ErrTimeout is returned when a condition is not met before the deadline.
var ErrTimeout = errors.New("timed out waiting for condition")

// Condition reports whether the awaited state has been reached. A non-nil
// error aborts polling immediately unless it is marked with Retry.
type Condition func(ctx context.Context) (bool, error)

// retryable marks a condition error as transient: polling continues and the
// error is reported only if the deadline passes.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Retry wraps err so that Poll keeps polling instead of aborting.
func Retry(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

// TimeoutError describes an elapsed deadline together with the last
// transient error seen, if any.
type TimeoutError struct {
	Timeout time.Duration
	Last    error
}

func (e *TimeoutError) Error() string {
	if e.Timeout <= 0 {
		if e.Last != nil {
			return fmt.Sprintf("%v: %v", ErrTimeout, e.Last)
		}
		return ErrTimeout.Error()
	}
	if e.Last != nil {
		return fmt.Sprintf("timed out after %s: %v", e.Timeout, e.Last)
	}
	return fmt.Sprintf("timed out after %s", e.Timeout)
}

// Is lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Unwrap exposes the last transient error so callers can classify it.
func (e *TimeoutError) Unwrap() error { return e.Last }

// Poll evaluates cond immediately and then every interval until it returns
// true, returns a non-retryable error, or timeout elapses. A zero or negative
// timeout means the wait is bounded only by ctx.
func Poll(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	var (
		last    error
		aborted bool
	)
	check := func(ctx context.Context) (bool, error) {
		ok, err := cond(ctx)
		if err == nil {
			return ok, nil
		}
		var r retryable
		switch {
		case errors.As(err, &r):
			last = r.err
			return false, nil
		case ctx.Err() != nil:
			// cond was cut short by the deadline; the loop reports it
			return false, nil
		}
		aborted = true
		return false, err
	}

	var err error
	if timeout > 0 {
		err = apiwait.PollUntilContextTimeout(ctx, interval, timeout, true, check)
	} else {
		err = apiwait.PollUntilContextCancel(ctx, interval, true, check)
	}
	if !aborted && errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout, Last: last}
	}
	return err
}

// Until polls cond at interval until it succeeds or ctx is done.
func Until(ctx context.Context, interval time.Duration, cond Condition) error {
	return Poll(ctx, interval, 0, cond)
}
