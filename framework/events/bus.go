package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/go-overlay/framework/metrics"
)

// SubscriptionID identifies one subscription.
type SubscriptionID string

type listener struct {
	id      SubscriptionID
	handler Handler
	owner   any
}

// Subscription is returned by Subscribe. Unsubscribe removes it; calling it
// again is harmless and returns false.
type Subscription struct {
	ID    SubscriptionID
	Event string
	bus   *Bus
}

// Unsubscribe removes the subscription from its bus.
func (s Subscription) Unsubscribe() bool {
	if s.bus == nil {
		return false
	}
	return s.bus.Unsubscribe(s.Event, s.ID)
}

// SubscriberInfo describes a subscription for diagnostics.
type SubscriberInfo struct {
	ID       SubscriptionID
	HasOwner bool
}

// Bus is the event bus and service registry.
//
// All methods are safe for concurrent use. Handlers are never invoked while
// the bus lock is held, so a handler may freely call back into the bus.
type Bus struct {
	mu sync.Mutex

	// event → listeners in subscription order
	listeners map[string][]*listener

	// name → instance, plus registration order for listings
	services map[string]any
	names    []string

	// name → status record
	status map[string]ServiceStatus

	// tag → names
	tags map[string][]string

	// name → pending EnsureService calls
	waiters map[string]map[*waiter]struct{}

	destroyed bool

	logger         *zap.Logger
	clock          clock.Clock
	metrics        *metrics.Collector
	defaultTimeout time.Duration
}

// NewBus creates a ready-to-use bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		listeners:      make(map[string][]*listener),
		services:       make(map[string]any),
		status:         make(map[string]ServiceStatus),
		tags:           make(map[string][]string),
		waiters:        make(map[string]map[*waiter]struct{}),
		logger:         zap.NewNop(),
		clock:          clock.New(),
		defaultTimeout: DefaultEnsureTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupInternalListeners()
	return b
}

// setupInternalListeners wires the waiter fan-out onto the bus's own events.
func (b *Bus) setupInternalListeners() {
	b.Subscribe(EventServiceStatusChanged, func(e Event) error {
		if data, ok := e.Data.(StatusChanged); ok {
			b.resolveWaiters(data.Name, data.Status)
		}
		return nil
	}, WithOwner(b))

	b.Subscribe(EventServiceRegistered, func(e Event) error {
		if data, ok := e.Data.(ServiceRegistered); ok {
			b.resolveWaiters(data.Name, data.Status)
		}
		return nil
	}, WithOwner(b))
}

// ── Publish / Subscribe ───────────────────────────────────────────────────────

// Subscribe registers handler for event and returns its Subscription.
func (b *Bus) Subscribe(event string, handler Handler, opts ...SubscribeOption) Subscription {
	l := &listener{
		id:      SubscriptionID(uuid.NewString()),
		handler: handler,
	}
	for _, opt := range opts {
		opt(l)
	}

	b.mu.Lock()
	b.listeners[event] = append(b.listeners[event], l)
	b.mu.Unlock()

	return Subscription{ID: l.id, Event: event, bus: b}
}

// Unsubscribe removes the subscription id from event.
// Returns false if no such subscription exists.
func (b *Bus) Unsubscribe(event string, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[event]
	for i, l := range ls {
		if l.id == id {
			b.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			if len(b.listeners[event]) == 0 {
				delete(b.listeners, event)
			}
			return true
		}
	}
	return false
}

// UnsubscribeOwner removes every subscription to event made WithOwner(owner).
// Returns how many were removed.
func (b *Bus) UnsubscribeOwner(event string, owner any) int {
	if owner == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[event]
	kept := ls[:0:0]
	for _, l := range ls {
		if l.owner != owner {
			kept = append(kept, l)
		}
	}
	removed := len(ls) - len(kept)
	if len(kept) == 0 {
		delete(b.listeners, event)
	} else {
		b.listeners[event] = kept
	}
	return removed
}

// Connect subscribes each handler to its event and returns a function that
// removes all of them.
//
//	disconnect := bus.Connect(map[string]events.Handler{
//	    "content:selected": m.onSelected,
//	    "theme:changed":    m.onThemeChanged,
//	})
//	defer disconnect()
func (b *Bus) Connect(handlers map[string]Handler, opts ...SubscribeOption) func() {
	subs := make([]Subscription, 0, len(handlers))
	for event, h := range handlers {
		subs = append(subs, b.Subscribe(event, h, opts...))
	}
	return func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}
}

// Publish delivers data to every handler subscribed to event at the moment
// Publish is called.
func (b *Bus) Publish(event string, data any) {
	b.mu.Lock()
	ls := b.listeners[event]
	snapshot := make([]*listener, len(ls))
	copy(snapshot, ls)
	b.mu.Unlock()

	b.metrics.EventPublished(event)
	if len(snapshot) == 0 {
		return
	}

	e := Event{Name: event, Data: data, Timestamp: b.clock.Now()}
	for _, l := range snapshot {
		err := invoke(l, e)
		if err == nil {
			continue
		}

		b.logger.Error("event handler failed",
			zap.String("event", event),
			zap.String("subscription", string(l.id)),
			zap.Error(err),
		)
		b.metrics.HandlerFailed(event)

		// Failures of handlerError handlers are only logged.
		if event != EventHandlerError {
			b.Publish(EventHandlerError, HandlerError{
				OriginalEvent: event,
				OriginalData:  data,
				Err:           err,
				Handler:       l.id,
			})
		}
	}
}

func invoke(l *listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return l.handler(e)
}

// ListSubscribers describes the current subscriptions to event.
func (b *Bus) ListSubscribers(event string) []SubscriberInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[event]
	out := make([]SubscriberInfo, 0, len(ls))
	for _, l := range ls {
		out = append(out, SubscriberInfo{ID: l.id, HasOwner: l.owner != nil})
	}
	return out
}

// ── Namespacing ───────────────────────────────────────────────────────────────

// Namespaced is a view of a Bus that prefixes every event name with "ns:".
type Namespaced struct {
	bus    *Bus
	prefix string
}

// Namespace returns a namespaced view of the bus.
//
//	ui := bus.Namespace("ui")
//	ui.Publish("opened", nil) // publishes "ui:opened"
func (b *Bus) Namespace(ns string) *Namespaced {
	return &Namespaced{bus: b, prefix: ns + ":"}
}

// Subscribe subscribes h to the namespaced event.
func (n *Namespaced) Subscribe(event string, h Handler, opts ...SubscribeOption) Subscription {
	return n.bus.Subscribe(n.prefix+event, h, opts...)
}

// Unsubscribe removes subscription id from the namespaced event.
func (n *Namespaced) Unsubscribe(event string, id SubscriptionID) bool {
	return n.bus.Unsubscribe(n.prefix+event, id)
}

// Publish publishes data on the namespaced event.
func (n *Namespaced) Publish(event string, data any) {
	n.bus.Publish(n.prefix+event, data)
}

// ── Destroy ───────────────────────────────────────────────────────────────────

// Destroy fails every pending EnsureService call with ErrDestroyed and clears
// all listeners, services, statuses and tags.
func (b *Bus) Destroy() {
	b.mu.Lock()
	pending := b.waiters
	b.listeners = make(map[string][]*listener)
	b.services = make(map[string]any)
	b.names = nil
	b.status = make(map[string]ServiceStatus)
	b.tags = make(map[string][]string)
	b.waiters = make(map[string]map[*waiter]struct{})
	b.destroyed = true
	b.mu.Unlock()

	for name, ws := range pending {
		err := fmt.Errorf("%w while waiting for service %q", ErrDestroyed, name)
		for w := range ws {
			w.deliver(nil, err)
		}
	}
}
