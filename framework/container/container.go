package container

import (
	"fmt"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/km-arc/go-overlay/framework/events"
	"github.com/km-arc/go-overlay/framework/metrics"
)

// IDs under which New registers the container and its bus.
const (
	ServiceContainerID = "serviceContainer"
	EventManagerID     = "eventManager"
)

// ── Registration ──────────────────────────────────────────────────────────────

// Registration describes one registered service. GetRegistration returns
// copies; mutating them does not affect the container.
type Registration struct {
	ID           string
	Kind         Kind
	Singleton    bool
	AutoRegister bool
	Dependencies []string
	Tags         []string
	Metadata     map[string]any
	Instantiated bool
}

// IsCritical reports whether a failure of this service aborts InitializeAll.
func (r Registration) IsCritical() bool {
	critical, _ := r.Metadata[MetadataCritical].(bool)
	return critical
}

func (r Registration) clone() Registration {
	r.Dependencies = slices.Clone(r.Dependencies)
	r.Tags = slices.Clone(r.Tags)
	r.Metadata = copyMap(r.Metadata)
	return r
}

type entry struct {
	reg  Registration
	impl Implementation
}

// publication is an instance waiting to be published into the bus once the
// container lock is released.
type publication struct {
	id       string
	instance any
	tags     []string
	metadata map[string]any
}

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the service container. Services are registered under string
// IDs with explicit dependency lists and are built lazily on first Get.
//
// All methods are safe for concurrent use. Resolution is serialized by a
// single lock that is held while factories and constructors run, so a
// factory must not call back into Get; it receives its dependencies as
// arguments instead.
type Container struct {
	mu sync.Mutex

	// id → registration, plus registration order
	registrations map[string]*entry
	order         []string

	// interface id → implementation id
	interfaces map[string]string

	// id → singleton instance, plus instantiation order for Destroy
	instances map[string]any
	built     []string

	// ids currently on the resolution stack
	resolving map[string]struct{}

	bus     *events.Bus
	logger  *zap.Logger
	clock   clock.Clock
	metrics *metrics.Collector
}

// New creates a container bridged to bus. A nil bus gets a private one.
//
// The container registers itself as "serviceContainer" and the bus as
// "eventManager"; both are published into the bus with status ready.
func New(bus *events.Bus, opts ...Option) *Container {
	c := &Container{
		registrations: make(map[string]*entry),
		interfaces:    make(map[string]string),
		instances:     make(map[string]any),
		resolving:     make(map[string]struct{}),
		logger:        zap.NewNop(),
		clock:         clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if bus == nil {
		bus = events.NewBus(events.WithLogger(c.logger), events.WithClock(c.clock), events.WithMetrics(c.metrics))
	}
	c.bus = bus

	c.MustRegister(ServiceContainerID, Value(c), AutoRegister(), Tags("core", "container"))
	c.MustRegister(EventManagerID, Value(bus), AutoRegister(), Tags("core", "events"))
	return c
}

// Bus returns the event bus the container publishes into.
func (c *Container) Bus() *events.Bus { return c.bus }

// Register stores a service registration, replacing any previous one with
// the same ID (and dropping its cached instance).
//
// Registrations are singletons unless Transient is given. Empty dependency
// IDs are skipped with a warning. A Value registered with AutoRegister is
// published into the bus immediately and counts as instantiated.
//
//	c.Register("markerContentManager", container.Constructor(newContentManager),
//	    container.DependsOn("eventManager", "componentFactory"),
//	    container.Tags("ui"),
//	)
func (c *Container) Register(id string, impl Implementation, opts ...RegisterOption) error {
	if id == "" {
		return &InvalidRegistrationError{ID: id, Reason: "empty service id"}
	}

	reg := Registration{ID: id, Kind: impl.kind, Singleton: true}
	for _, opt := range opts {
		opt(&reg)
	}

	deps := make([]string, 0, len(reg.Dependencies))
	for i, dep := range reg.Dependencies {
		if dep == "" {
			c.logger.Warn("ignoring empty dependency id",
				zap.String("service", id),
				zap.Int("position", i),
			)
			continue
		}
		deps = append(deps, dep)
	}
	reg.Dependencies = deps
	reg.Tags = slices.Clone(reg.Tags)
	reg.Metadata = copyMap(reg.Metadata)

	if reason := impl.validate(len(deps)); reason != "" {
		return &InvalidRegistrationError{ID: id, Reason: reason}
	}

	var pending []publication

	c.mu.Lock()
	if _, exists := c.registrations[id]; exists {
		c.forgetInstanceLocked(id)
		c.logger.Debug("replacing service registration", zap.String("service", id))
	} else {
		c.order = append(c.order, id)
	}

	e := &entry{reg: reg, impl: impl}
	if impl.kind == KindValue && reg.AutoRegister {
		c.instances[id] = impl.value
		c.built = append(c.built, id)
		e.reg.Instantiated = true
		pending = append(pending, publication{id: id, instance: impl.value, tags: reg.Tags, metadata: reg.Metadata})
	}
	c.registrations[id] = e
	c.mu.Unlock()

	c.logger.Debug("service registered",
		zap.String("service", id),
		zap.Stringer("kind", impl.kind),
		zap.Bool("singleton", reg.Singleton),
		zap.Strings("dependencies", deps),
	)
	c.publish(pending)
	return nil
}

// MustRegister is Register for static wiring: it panics on error and
// returns the container for chaining.
//
//	c.MustRegister("config", container.Value(cfg), container.AutoRegister()).
//	    MustRegister("cache", container.Constructor(newCache), container.DependsOn("config"))
func (c *Container) MustRegister(id string, impl Implementation, opts ...RegisterOption) *Container {
	if err := c.Register(id, impl, opts...); err != nil {
		panic(err)
	}
	return c
}

// RegisterInterface makes Get(interfaceID) resolve implID. The link is
// followed exactly once; an interface pointing at another interface is not
// chased further.
func (c *Container) RegisterInterface(interfaceID, implID string) *Container {
	if interfaceID == "" || interfaceID == implID {
		c.logger.Warn("ignoring invalid interface mapping",
			zap.String("interface", interfaceID),
			zap.String("implementation", implID),
		)
		return c
	}
	c.mu.Lock()
	c.interfaces[interfaceID] = implID
	c.mu.Unlock()
	return c
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Get returns the instance of id, building it and its dependencies on first
// use. An unknown id yields (nil, nil).
//
// Dependencies are resolved depth first in declared order and passed to the
// implementation positionally; one that is not registered arrives as nil.
// A service that transitively depends on itself fails with
// *CircularDependencyError. Failures of the implementation itself are
// wrapped in *BuildError.
func (c *Container) Get(id string) (any, error) {
	var pending []publication

	c.mu.Lock()
	inst, err := c.resolveLocked(id, &pending)
	c.mu.Unlock()

	c.publish(pending)
	return inst, err
}

func (c *Container) resolveLocked(id string, pending *[]publication) (any, error) {
	if target, ok := c.interfaces[id]; ok {
		id = target
	}

	e, ok := c.registrations[id]
	if !ok {
		c.metrics.Resolved("unknown")
		return nil, nil
	}

	if e.reg.Singleton && e.reg.Instantiated {
		c.metrics.Resolved("cached")
		return c.instances[id], nil
	}

	if _, busy := c.resolving[id]; busy {
		c.metrics.Resolved("circular")
		return nil, &CircularDependencyError{ID: id}
	}
	c.resolving[id] = struct{}{}
	defer delete(c.resolving, id)

	deps := make([]any, len(e.reg.Dependencies))
	for i, depID := range e.reg.Dependencies {
		dep, err := c.resolveLocked(depID, pending)
		if err != nil {
			return nil, err
		}
		if dep == nil && !c.hasLocked(depID) {
			c.logger.Warn("dependency not registered",
				zap.String("service", id),
				zap.String("dependency", depID),
			)
		}
		deps[i] = dep
	}

	inst, err := buildSafely(e.impl, deps)
	if err != nil {
		c.metrics.Resolved("error")
		return nil, &BuildError{ID: id, Err: err}
	}
	c.metrics.Resolved("built")

	if e.reg.Singleton {
		c.instances[id] = inst
		c.built = append(c.built, id)
		e.reg.Instantiated = true
	}
	if e.reg.AutoRegister {
		*pending = append(*pending, publication{
			id:       id,
			instance: inst,
			tags:     e.reg.Tags,
			metadata: e.reg.Metadata,
		})
	}
	return inst, nil
}

func buildSafely(impl Implementation, deps []any) (inst any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.build(deps)
}

// publish pushes auto-registered instances into the bus, replacing any
// earlier registration of the same name.
func (c *Container) publish(pubs []publication) {
	for _, p := range pubs {
		c.bus.RegisterService(p.id, p.instance,
			events.Overwrite(),
			events.WithInitialStatus(events.StatusReady),
			events.WithTags(p.tags...),
			events.WithMetadata(p.metadata),
		)
	}
}

// Resolve is a generic helper that calls Get and type-asserts the result.
// An unknown id yields *NotRegisteredError.
//
//	bus, err := container.Resolve[*events.Bus](c, "eventManager")
func Resolve[T any](c *Container, id string) (T, error) {
	var zero T
	inst, err := c.Get(id)
	if err != nil {
		return zero, err
	}
	if inst == nil {
		if !c.Has(id) {
			return zero, &NotRegisteredError{ID: id}
		}
		return zero, nil
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("container: Resolve[%T]: %q resolved to %T", zero, id, inst)
	}
	return typed, nil
}

// ── Bookkeeping ───────────────────────────────────────────────────────────────

// Has reports whether id is registered as a service or an interface.
func (c *Container) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLocked(id)
}

func (c *Container) hasLocked(id string) bool {
	if _, ok := c.registrations[id]; ok {
		return true
	}
	_, ok := c.interfaces[id]
	return ok
}

// GetRegistration returns a copy of the registration of id.
func (c *Container) GetRegistration(id string) (Registration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.registrations[id]
	if !ok {
		return Registration{}, false
	}
	return e.reg.clone(), true
}

// Registrations returns copies of every registration in registration order.
func (c *Container) Registrations() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Registration, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.registrations[id].reg.clone())
	}
	return out
}

// IDs returns the registered service IDs in registration order.
func (c *Container) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// FindByTag resolves every service tagged with tag, in registration order.
// Services that fail to build or resolve to nil are left out.
func (c *Container) FindByTag(tag string) []any {
	c.mu.Lock()
	var ids []string
	for _, id := range c.order {
		if slices.Contains(c.registrations[id].reg.Tags, tag) {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		inst, err := c.Get(id)
		if err != nil {
			c.logger.Warn("skipping tagged service", zap.String("service", id), zap.Error(err))
			continue
		}
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

// Unregister removes id, its cached instance and every interface pointing
// at it, and withdraws it from the bus.
func (c *Container) Unregister(id string) bool {
	c.mu.Lock()
	if _, ok := c.registrations[id]; !ok {
		c.mu.Unlock()
		return false
	}
	c.forgetInstanceLocked(id)
	delete(c.registrations, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	for iface, impl := range c.interfaces {
		if impl == id {
			delete(c.interfaces, iface)
		}
	}
	c.mu.Unlock()

	if c.bus.GetService(id) != nil {
		c.bus.UnregisterService(id)
	}
	return true
}

func (c *Container) forgetInstanceLocked(id string) {
	delete(c.instances, id)
	c.built = slices.DeleteFunc(c.built, func(s string) bool { return s == id })
}

// ── Destroy ───────────────────────────────────────────────────────────────────

// Destroy calls Destroy on every cached instance that implements Disposable,
// most recently built first, then clears the container. The container's own
// registration is skipped. The bus, registered first, is destroyed last.
func (c *Container) Destroy() {
	c.mu.Lock()
	built := c.built
	instances := c.instances
	c.registrations = make(map[string]*entry)
	c.order = nil
	c.interfaces = make(map[string]string)
	c.instances = make(map[string]any)
	c.built = nil
	c.resolving = make(map[string]struct{})
	c.mu.Unlock()

	for i := len(built) - 1; i >= 0; i-- {
		id := built[i]
		inst := instances[id]
		if inst == any(c) {
			continue
		}
		d, ok := inst.(Disposable)
		if !ok {
			continue
		}
		if err := destroySafely(d); err != nil {
			c.logger.Error("error destroying service", zap.String("service", id), zap.Error(err))
		}
	}
}

func destroySafely(d Disposable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	d.Destroy()
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
