package events

import (
	"context"

	"go.uber.org/zap"
)

type waitResult struct {
	instance any
	err      error
}

// waiter is one pending EnsureService call. ch has room for exactly one
// result; a waiter is removed from the bus before anything is delivered to
// it, so it is delivered to at most once.
type waiter struct {
	required Status
	ch       chan waitResult
}

func (w *waiter) deliver(instance any, err error) {
	w.ch <- waitResult{instance: instance, err: err}
}

// EnsureService returns the service registered under name once it has the
// required status (StatusReady unless RequiredStatus is given).
//
// If the service already satisfies the requirement it returns immediately.
// Otherwise it waits for a registration or status change that satisfies it.
// When the timeout elapses it publishes EventServiceWaitTimeout and returns a
// *WaitTimeoutError, or (nil, nil) if Optional was given. A cancelled ctx
// returns ctx.Err(); a destroyed bus returns an error wrapping ErrDestroyed.
func (b *Bus) EnsureService(ctx context.Context, name string, opts ...EnsureOption) (any, error) {
	o := ensureOptions{timeout: b.defaultTimeout, required: StatusReady}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = b.defaultTimeout
	}

	b.mu.Lock()
	if inst, ok := b.services[name]; ok && b.status[name].Status == o.required {
		b.mu.Unlock()
		return inst, nil
	}
	if b.destroyed {
		b.mu.Unlock()
		return nil, ErrDestroyed
	}
	w := &waiter{required: o.required, ch: make(chan waitResult, 1)}
	if b.waiters[name] == nil {
		b.waiters[name] = make(map[*waiter]struct{})
	}
	b.waiters[name][w] = struct{}{}
	b.mu.Unlock()

	timer := b.clock.Timer(o.timeout)
	defer timer.Stop()

	select {
	case res := <-w.ch:
		return res.instance, res.err

	case <-timer.C:
		if !b.removeWaiter(name, w) {
			// Resolved between the timer firing and us taking the lock.
			res := <-w.ch
			return res.instance, res.err
		}
		err := &WaitTimeoutError{Name: name, RequiredStatus: o.required, Timeout: o.timeout}
		b.metrics.WaitTimedOut()
		b.logger.Warn("timed out waiting for service",
			zap.String("service", name),
			zap.String("requiredStatus", string(o.required)),
			zap.Duration("timeout", o.timeout),
		)
		b.Publish(EventServiceWaitTimeout, WaitTimeout{
			Name:           name,
			RequiredStatus: o.required,
			Timeout:        o.timeout,
			Err:            err,
		})
		if o.optional {
			return nil, nil
		}
		return nil, err

	case <-ctx.Done():
		if !b.removeWaiter(name, w) {
			res := <-w.ch
			return res.instance, res.err
		}
		return nil, ctx.Err()
	}
}

// resolveWaiters delivers the current instance of name to every waiter
// whose required status equals status.
func (b *Bus) resolveWaiters(name string, status Status) {
	b.mu.Lock()
	ws := b.waiters[name]
	if len(ws) == 0 {
		b.mu.Unlock()
		return
	}
	instance := b.services[name]
	var ready []*waiter
	for w := range ws {
		if w.required == status {
			ready = append(ready, w)
			delete(ws, w)
		}
	}
	if len(ws) == 0 {
		delete(b.waiters, name)
	}
	b.mu.Unlock()

	for _, w := range ready {
		w.deliver(instance, nil)
	}
}

// removeWaiter drops w from the waiting list. It reports false when w was
// already taken off by a resolution or Destroy.
func (b *Bus) removeWaiter(name string, w *waiter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ws := b.waiters[name]
	if _, ok := ws[w]; !ok {
		return false
	}
	delete(ws, w)
	if len(ws) == 0 {
		delete(b.waiters, name)
	}
	return true
}

// WaitingCount returns how many EnsureService calls are pending for name.
func (b *Bus) WaitingCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters[name])
}
