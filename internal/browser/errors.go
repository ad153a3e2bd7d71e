package browser

import (
	"errors"
	"fmt"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrNavigation      = errors.New("navigation failed")
	ErrSession         = errors.New("browser session unavailable")
	ErrSessionClosed   = errors.New("browser session closed")
	ErrInvalidLocator  = errors.New("invalid locator")

	// ErrAmbiguousLocator is returned when a strict locator matches more than
	// one visible element. It also matches ErrElementNotFound.
	ErrAmbiguousLocator error = ambiguousError{}
)

type ambiguousError struct{}

func (ambiguousError) Error() string { return "locator matched more than one visible element" }
func (ambiguousError) Unwrap() error { return ErrElementNotFound }

// LocatorError ties a resolution failure to the locator that caused it.
type LocatorError struct {
	Locator string
	Visible int // visible matches seen on the last attempt
	Err     error
}

func (e *LocatorError) Error() string {
	if errors.Is(e.Err, ErrAmbiguousLocator) {
		return fmt.Sprintf("%s: %v (%d matches)", e.Locator, e.Err, e.Visible)
	}
	return fmt.Sprintf("%s: %v", e.Locator, e.Err)
}

func (e *LocatorError) Unwrap() error {
	return e.Err
}

// IsElementNotFound reports whether err means no unique visible element
// could be resolved.
func IsElementNotFound(err error) bool {
	return errors.Is(err, ErrElementNotFound)
}
