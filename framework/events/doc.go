// Package events provides the overlay's event bus: synchronous
// publish/subscribe dispatch plus a named-service registry with per-service
// status tracking and "wait until a service reaches status X" calls.
//
// # Publish / Subscribe
//
//	bus := events.NewBus(events.WithLogger(logger))
//	sub := bus.Subscribe("theme:changed", func(e events.Event) error {
//	    fmt.Println(e.Data)
//	    return nil
//	})
//	bus.Publish("theme:changed", content.ThemeChange{Theme: "dark"})
//	sub.Unsubscribe()
//
// Handlers run synchronously, in subscription order, over a snapshot of the
// handler list taken when Publish starts. A handler that returns an error or
// panics is logged and reported as an "event:handlerError" event; delivery
// continues with the next handler.
//
// # Services
//
//	bus.RegisterService("aiService", svc, events.WithTags("ai"))
//	bus.UpdateServiceStatus("aiService", events.StatusReady, nil)
//
//	// elsewhere, possibly before registration happened:
//	svc, err := bus.EnsureService(ctx, "aiService", events.Timeout(2*time.Second))
//
// EnsureService returns immediately when the service already has the
// required status. Otherwise it blocks until a later registration or status
// change delivers it, the timeout elapses, ctx is done, or the bus is
// destroyed.
package events
