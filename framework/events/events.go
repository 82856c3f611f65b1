package events

import (
	"time"
)

// Event names emitted by the bus itself.
const (
	EventServiceRegistered    = "service:registered"
	EventServiceUnregistered  = "service:unregistered"
	EventServiceStatusChanged = "service:statusChanged"
	EventServiceWaitTimeout   = "service:waitTimeout"
	EventHandlerError         = "event:handlerError"
)

// Status is a named lifecycle stage of a service. Any string is allowed;
// the two below are the ones the overlay itself uses.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusReady      Status = "ready"
)

// Event is what a Handler receives.
type Event struct {
	Name      string
	Data      any
	Timestamp time.Time
}

// Handler handles a published event. Returning an error (or panicking)
// marks this invocation as failed without affecting other handlers.
type Handler func(Event) error

// ServiceStatus is a snapshot of a service's status record.
type ServiceStatus struct {
	Status    Status
	Timestamp time.Time
	Metadata  map[string]any
}

// ServiceRegistered is the payload of EventServiceRegistered.
type ServiceRegistered struct {
	Name     string
	Instance any
	Status   Status
	Tags     []string
	Metadata map[string]any
}

// StatusChanged is the payload of EventServiceStatusChanged.
type StatusChanged struct {
	Name           string
	Status         Status
	PreviousStatus Status
	Timestamp      time.Time
	Metadata       map[string]any
}

// WaitTimeout is the payload of EventServiceWaitTimeout.
type WaitTimeout struct {
	Name           string
	RequiredStatus Status
	Timeout        time.Duration
	Err            error
}

// HandlerError is the payload of EventHandlerError.
type HandlerError struct {
	OriginalEvent string
	OriginalData  any
	Err           error
	Handler       SubscriptionID
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
