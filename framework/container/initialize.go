package container

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/km-arc/go-overlay/framework/events"
)

// EventServicesInitialized is published by InitializeAll with an InitSummary.
const EventServicesInitialized = "services:initialized"

// Initializable is implemented by services with an asynchronous start-up
// step. Initialize should return promptly once ctx is done.
type Initializable interface {
	Initialize(ctx context.Context) error
}

// Disposable is implemented by services that release resources on Destroy.
type Disposable interface {
	Destroy()
}

// InitFailure records one service that failed during InitializeAll.
type InitFailure struct {
	ID  string
	Err error
}

// InitSummary is the payload of EventServicesInitialized.
type InitSummary struct {
	Successful  int
	Failed      int
	Errors      []InitFailure
	ElapsedTime time.Duration
}

// Initialize resolves id and, if the instance implements Initializable, runs
// its Initialize bounded by InitTimeout (default 10s). On success the
// service's bus status becomes ready. Instances without an Initialize step
// are returned as they are.
func (c *Container) Initialize(ctx context.Context, id string, opts ...InitOption) (any, error) {
	o := initOptions{timeout: DefaultInitTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultInitTimeout
	}

	inst, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, &NotRegisteredError{ID: id}
	}

	svc, ok := inst.(Initializable)
	if !ok {
		return inst, nil
	}

	start := c.clock.Now()
	err = c.runInitialize(ctx, id, svc, o.timeout)
	elapsed := c.clock.Since(start)
	if err != nil {
		c.metrics.Initialized(id, "error", elapsed.Seconds())
		return nil, err
	}
	c.metrics.Initialized(id, "ok", elapsed.Seconds())

	if _, registered := c.bus.GetServiceStatus(id); registered {
		c.bus.UpdateServiceStatus(id, events.StatusReady, map[string]any{
			"initializedAt": c.clock.Now(),
		})
	}
	c.logger.Debug("service initialized", zap.String("service", id), zap.Duration("elapsed", elapsed))
	return inst, nil
}

func (c *Container) runInitialize(ctx context.Context, id string, svc Initializable, timeout time.Duration) error {
	ictx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- svc.Initialize(ictx)
	}()

	timer := c.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return &InitializationError{ID: id, Err: err}
		}
		return nil
	case <-timer.C:
		return &InitTimeoutError{ID: id, Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InitializeAll initializes every registered service, dependencies before
// dependents, within AllTimeout (default 30s). Each service gets whatever is
// left of the budget, but never less than one second.
//
// Failures are collected and reported in the EventServicesInitialized
// summary. Sequentially, the first failing Critical service aborts the run
// with *CriticalServiceError. With Parallel every service is started at
// once and all critical failures are returned together after the others
// finish.
func (c *Container) InitializeAll(ctx context.Context, opts ...InitOption) (map[string]any, error) {
	o := initOptions{timeout: DefaultInitAllTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultInitAllTimeout
	}

	start := c.clock.Now()
	order := c.InitOrder()

	var (
		mu       sync.Mutex
		results  = make(map[string]any, len(order))
		failures []InitFailure
		critical error
	)
	record := func(id string, inst any, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			results[id] = inst
			return
		}
		failures = append(failures, InitFailure{ID: id, Err: err})
		c.logger.Error("failed to initialize service", zap.String("service", id), zap.Error(err))
		if c.isCritical(id) {
			critical = multierr.Append(critical, &CriticalServiceError{ID: id, Err: err})
		}
	}

	if o.parallel {
		var g errgroup.Group
		for _, id := range order {
			budget := c.remaining(start, o.timeout)
			g.Go(func() error {
				inst, err := c.Initialize(ctx, id, InitTimeout(budget))
				record(id, inst, err)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, id := range order {
			var (
				inst any
				err  error
			)
			if c.clock.Since(start) >= o.timeout {
				err = fmt.Errorf("%w: overall budget of %s exhausted", ErrTimeout, o.timeout)
			} else {
				inst, err = c.Initialize(ctx, id, InitTimeout(c.remaining(start, o.timeout)))
			}
			record(id, inst, err)
			if critical != nil {
				return results, critical
			}
		}
	}

	summary := InitSummary{
		Successful:  len(results),
		Failed:      len(failures),
		Errors:      failures,
		ElapsedTime: c.clock.Since(start),
	}
	c.logger.Info("services initialized",
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.ElapsedTime),
	)
	c.bus.Publish(EventServicesInitialized, summary)

	return results, critical
}

func (c *Container) remaining(start time.Time, total time.Duration) time.Duration {
	return max(minServiceBudget, total-c.clock.Since(start))
}

func (c *Container) isCritical(id string) bool {
	reg, ok := c.GetRegistration(id)
	return ok && reg.IsCritical()
}

// InitOrder returns every registered ID in initialization order: a
// depth-first walk over the IDs in lexicographic order, emitting each
// service after its declared dependencies. Dependencies that are not
// registered are left out.
func (c *Container) InitOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	roots := slices.Sorted(maps.Keys(c.registrations))

	visited := make(map[string]bool, len(roots))
	order := make([]string, 0, len(roots))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		e, ok := c.registrations[id]
		if !ok {
			return
		}
		for _, dep := range e.reg.Dependencies {
			if target, isIface := c.interfaces[dep]; isIface {
				dep = target
			}
			visit(dep)
		}
		order = append(order, id)
	}
	for _, id := range roots {
		visit(id)
	}
	return order
}
