// Package container provides the overlay's service container: string-keyed
// registrations with explicit dependency lists, lazy singleton construction,
// cycle detection and bridging of built instances into the event bus.
//
// # Registering
//
// Every registration names how its instance is produced.
//
//	c := container.New(bus)
//
//	// Already-built value, published into the bus right away.
//	c.MustRegister("config", container.Value(cfg), container.AutoRegister())
//
//	// Plain factory; dependencies arrive positionally.
//	c.MustRegister("cache", container.Factory(func(deps ...any) (any, error) {
//	    return newCache(deps[0].(*config.Config)), nil
//	}), container.DependsOn("config"))
//
//	// Typed constructor returning T or (T, error).
//	c.MustRegister("widgetFactory", container.Constructor(NewWidgetFactory),
//	    container.DependsOn("eventManager"),
//	    container.AutoRegister(),
//	    container.Tags("ui"),
//	)
//
// Registrations are singletons unless Transient is given. Dependencies are
// never inferred: the DependsOn list is the whole story.
//
// # Resolving
//
//	raw, err := c.Get("widgetFactory")               // (nil, nil) if unknown
//	wf, err := container.Resolve[*WidgetFactory](c, "widgetFactory")
//
// Dependencies are resolved depth first in declared order. A service that
// reaches itself again while being built fails with *CircularDependencyError.
// Only cycles walked by Get are seen; instances a service looks up on the
// bus at runtime are outside the dependency graph and are not checked.
// With AutoRegister the instance is published into the bus with status
// ready once it exists.
//
// RegisterInterface adds one level of indirection:
//
//	c.RegisterInterface("ContentFactory", "componentFactory")
//
// # Initialization
//
// Services implementing Initializable are started with Initialize or, for
// the whole container, InitializeAll. Both race the service against a
// timeout and mark it ready on the bus on success. InitializeAll walks
// dependencies before dependents and publishes an InitSummary as
// "services:initialized".
//
//	results, err := c.InitializeAll(ctx, container.AllTimeout(30*time.Second))
//
// # Service Providers
//
//	registry := container.NewProviderRegistry(c)
//	_ = registry.Register(ctx, &ContentProvider{})
//	_ = registry.Boot(ctx)
//
// # Shutdown
//
// Destroy calls Destroy on every cached Disposable instance, most recently
// built first, and clears the container.
package container
