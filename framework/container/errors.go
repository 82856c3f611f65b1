package container

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every initialization timeout.
var ErrTimeout = errors.New("container: initialization timeout")

// CircularDependencyError is returned by Get when a service transitively
// depends on itself.
type CircularDependencyError struct {
	ID string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("container: circular dependency detected for service %q", e.ID)
}

// NotRegisteredError is returned by operations that need an existing
// registration, such as Initialize.
type NotRegisteredError struct {
	ID string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("container: service %q not registered", e.ID)
}

// InvalidRegistrationError is returned by Register for malformed input.
type InvalidRegistrationError struct {
	ID     string
	Reason string
}

func (e *InvalidRegistrationError) Error() string {
	return fmt.Sprintf("container: invalid registration %q: %s", e.ID, e.Reason)
}

// BuildError wraps a failure of a factory or constructor.
type BuildError struct {
	ID  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("container: building service %q: %v", e.ID, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// InitTimeoutError is returned when a service's Initialize did not finish
// within its budget.
type InitTimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *InitTimeoutError) Error() string {
	return fmt.Sprintf("container: timeout after %s initializing service %q", e.Timeout, e.ID)
}

func (e *InitTimeoutError) Is(target error) bool { return target == ErrTimeout }

// InitializationError wraps an error returned by a service's Initialize.
type InitializationError struct {
	ID  string
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("container: initializing service %q: %v", e.ID, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// CriticalServiceError aborts InitializeAll when a service registered as
// Critical fails.
type CriticalServiceError struct {
	ID  string
	Err error
}

func (e *CriticalServiceError) Error() string {
	return fmt.Sprintf("container: critical service %q failed to initialize: %v", e.ID, e.Err)
}

func (e *CriticalServiceError) Unwrap() error { return e.Err }
