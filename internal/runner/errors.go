package runner

import (
	"context"
	"errors"
	"fmt"

	"uiverify/internal/browser"
	"uiverify/internal/script"
	"uiverify/internal/wait"
)

var (
	ErrElementNotFound   = browser.ErrElementNotFound
	ErrAmbiguousLocator  = browser.ErrAmbiguousLocator
	ErrNavigation        = browser.ErrNavigation
	ErrSession           = browser.ErrSession
	ErrTimeout           = wait.ErrTimeout
	ErrInvalidScript     = script.ErrInvalid
	ErrAssertionMismatch = errors.New("assertion mismatch")
	ErrTitleLookup       = errors.New("bill title lookup failed")
)

// Error kinds as recorded in reports and history.
const (
	KindInvalidScript     = "invalid_script"
	KindTitleLookup       = "title_lookup"
	KindSession           = "session"
	KindNavigation        = "navigation"
	KindAmbiguousLocator  = "ambiguous_locator"
	KindElementNotFound   = "element_not_found"
	KindAssertionMismatch = "assertion_mismatch"
	KindTimeout           = "timeout"
	KindCanceled          = "canceled"
	KindPanic             = "panic"
	KindOther             = "error"
)

// Kind classifies err into one of the Kind* strings. It returns "" for nil.
func Kind(err error) string {
	var pe *panicError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return KindPanic
	case errors.Is(err, ErrInvalidScript):
		return KindInvalidScript
	case errors.Is(err, ErrTitleLookup):
		return KindTitleLookup
	case errors.Is(err, ErrSession):
		return KindSession
	case errors.Is(err, ErrNavigation):
		return KindNavigation
	case errors.Is(err, ErrAmbiguousLocator):
		return KindAmbiguousLocator
	case errors.Is(err, ErrElementNotFound):
		return KindElementNotFound
	case errors.Is(err, ErrAssertionMismatch):
		return KindAssertionMismatch
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindOther
}

// StepError is the error a run fails with. Index 0 is the implicit
// navigation to the script URL.
type StepError struct {
	Index       int
	Action      script.Action
	Description string
	Locator     string
	Err         error
}

func (e *StepError) Error() string {
	if e.Index == 0 {
		return fmt.Sprintf("initial navigation: %v", e.Err)
	}
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Description, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Kind classifies the underlying failure.
func (e *StepError) Kind() string {
	return Kind(e.Err)
}

// MismatchError reports an assertion whose observed state never matched.
type MismatchError struct {
	Expect   script.Expectation
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	switch e.Expect {
	case script.ExpectVisible, script.ExpectHidden:
		return fmt.Sprintf("expected element to be %s, but it was %s", e.Expected, e.Actual)
	case script.ExpectContains:
		return fmt.Sprintf("expected text to contain %q, got %q", e.Expected, e.Actual)
	}
	return fmt.Sprintf("expected %s %q, got %q", e.Expect, e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error {
	return ErrAssertionMismatch
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic during step: %v", e.value)
}
