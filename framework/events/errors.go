package events

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every wait timeout returned from the bus.
	ErrTimeout = errors.New("events: timeout")

	// ErrDestroyed is returned to waiters still pending when Destroy runs.
	ErrDestroyed = errors.New("events: bus destroyed")
)

// WaitTimeoutError is returned by EnsureService when the service did not
// reach the required status in time.
type WaitTimeoutError struct {
	Name           string
	RequiredStatus Status
	Timeout        time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for service %q with status %q", e.Timeout, e.Name, e.RequiredStatus)
}

func (e *WaitTimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}
