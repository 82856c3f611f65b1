package container_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/km-arc/go-overlay/framework/container"
	"github.com/km-arc/go-overlay/framework/events"
)

func newContainer(t *testing.T) (*container.Container, *events.Bus) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(events.WithLogger(logger))
	c := container.New(bus, container.WithLogger(logger))
	t.Cleanup(c.Destroy)
	return c, bus
}

type widgetFactory struct {
	bus *events.Bus
}

func newWidgetFactory(bus *events.Bus) *widgetFactory {
	return &widgetFactory{bus: bus}
}

type counter struct{ n int }

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_RegistersItselfAndBus(t *testing.T) {
	c, bus := newContainer(t)

	self, err := c.Get(container.ServiceContainerID)
	require.NoError(t, err)
	require.Same(t, c, self)

	em, err := c.Get(container.EventManagerID)
	require.NoError(t, err)
	require.Same(t, bus, em)

	require.Same(t, bus, bus.GetService(container.EventManagerID))
	status, ok := bus.GetServiceStatus(container.ServiceContainerID)
	require.True(t, ok)
	require.Equal(t, events.StatusReady, status.Status)

	reg, ok := c.GetRegistration(container.EventManagerID)
	require.True(t, ok)
	require.True(t, reg.Instantiated)
	require.Equal(t, []string{"core", "events"}, reg.Tags)
}

func TestNew_NilBusGetsPrivateBus(t *testing.T) {
	c := container.New(nil)
	defer c.Destroy()
	require.NotNil(t, c.Bus())
	require.Same(t, c.Bus(), c.Bus().GetService(container.EventManagerID))
}

// ── Get ───────────────────────────────────────────────────────────────────────

func TestGet_UnknownReturnsNil(t *testing.T) {
	c, _ := newContainer(t)
	inst, err := c.Get("nope")
	require.NoError(t, err)
	require.Nil(t, inst)
}

func TestGet_SingletonIsBuiltOnce(t *testing.T) {
	c, _ := newContainer(t)

	builds := 0
	c.MustRegister("svc", container.Factory(func(...any) (any, error) {
		builds++
		return &counter{}, nil
	}))

	first, err := c.Get("svc")
	require.NoError(t, err)
	second, err := c.Get("svc")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, builds)
}

func TestGet_TransientBuildsEveryTime(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("svc", container.Factory(func(...any) (any, error) {
		return &counter{}, nil
	}), container.Transient())

	first, _ := c.Get("svc")
	second, _ := c.Get("svc")
	require.NotSame(t, first, second)

	reg, _ := c.GetRegistration("svc")
	require.False(t, reg.Instantiated)
}

func TestGet_ResolvesDependenciesInDeclaredOrder(t *testing.T) {
	c, _ := newContainer(t)

	var built []string
	factory := func(name string) container.Implementation {
		return container.Factory(func(deps ...any) (any, error) {
			built = append(built, name)
			return name, nil
		})
	}

	c.MustRegister("A", container.Factory(func(deps ...any) (any, error) {
		built = append(built, "A")
		require.Equal(t, []any{"B", "C"}, deps)
		return "A", nil
	}), container.DependsOn("B", "C"))
	c.MustRegister("B", factory("B"))
	c.MustRegister("C", factory("C"))

	inst, err := c.Get("A")
	require.NoError(t, err)
	require.Equal(t, "A", inst)
	require.Equal(t, []string{"B", "C", "A"}, built)
}

func TestGet_MissingDependencyArrivesAsNil(t *testing.T) {
	c, _ := newContainer(t)

	var got []any
	c.MustRegister("svc", container.Factory(func(deps ...any) (any, error) {
		got = deps
		return "ok", nil
	}), container.DependsOn("ghost"))

	_, err := c.Get("svc")
	require.NoError(t, err)
	require.Equal(t, []any{nil}, got)
}

func TestGet_CircularDependency(t *testing.T) {
	c, _ := newContainer(t)
	noop := container.Factory(func(...any) (any, error) { return "x", nil })
	c.MustRegister("A", noop, container.DependsOn("B"))
	c.MustRegister("B", noop, container.DependsOn("A"))

	_, err := c.Get("A")
	var cycle *container.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	require.Equal(t, "A", cycle.ID)

	// The resolution guard is cleared on failure, so the error repeats
	// instead of sticking to an unrelated service.
	_, err = c.Get("B")
	require.ErrorAs(t, err, &cycle)
	require.Equal(t, "B", cycle.ID)

	c.MustRegister("C", noop)
	inst, err := c.Get("C")
	require.NoError(t, err)
	require.Equal(t, "x", inst)
}

func TestGet_SelfDependency(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("A", container.Factory(func(...any) (any, error) { return 1, nil }), container.DependsOn("A"))

	_, err := c.Get("A")
	var cycle *container.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
}

func TestGet_FactoryErrorIsWrapped(t *testing.T) {
	c, _ := newContainer(t)
	boom := errors.New("boom")
	c.MustRegister("svc", container.Factory(func(...any) (any, error) { return nil, boom }))

	_, err := c.Get("svc")
	var berr *container.BuildError
	require.ErrorAs(t, err, &berr)
	require.Equal(t, "svc", berr.ID)
	require.ErrorIs(t, err, boom)

	reg, _ := c.GetRegistration("svc")
	require.False(t, reg.Instantiated)
}

func TestGet_FactoryPanicIsRecovered(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("svc", container.Factory(func(...any) (any, error) { panic("bad") }))

	_, err := c.Get("svc")
	var berr *container.BuildError
	require.ErrorAs(t, err, &berr)
	require.Contains(t, err.Error(), "bad")
}

// ── Constructors ──────────────────────────────────────────────────────────────

func TestConstructor_ReceivesTypedDependencies(t *testing.T) {
	c, bus := newContainer(t)
	c.MustRegister("widgetFactory", container.Constructor(newWidgetFactory),
		container.DependsOn(container.EventManagerID),
		container.AutoRegister(),
		container.Tags("ui"),
	)

	wf, err := container.Resolve[*widgetFactory](c, "widgetFactory")
	require.NoError(t, err)
	require.Same(t, bus, wf.bus)

	ensured, err := bus.EnsureService(context.Background(), "widgetFactory")
	require.NoError(t, err)
	require.Same(t, wf, ensured)
	require.Equal(t, []any{wf}, bus.FindServicesByTag("ui"))
}

func TestConstructor_ErrorResult(t *testing.T) {
	c, _ := newContainer(t)
	boom := errors.New("no")
	c.MustRegister("svc", container.Constructor(func() (*counter, error) { return nil, boom }))

	_, err := c.Get("svc")
	require.ErrorIs(t, err, boom)
}

func TestConstructor_NilDependencyBecomesZero(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("wf", container.Constructor(newWidgetFactory), container.DependsOn("ghost"))

	wf, err := container.Resolve[*widgetFactory](c, "wf")
	require.NoError(t, err)
	require.Nil(t, wf.bus)
}

func TestConstructor_TypeMismatch(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("num", container.Value(42))
	c.MustRegister("wf", container.Constructor(newWidgetFactory), container.DependsOn("num"))

	_, err := c.Get("wf")
	var berr *container.BuildError
	require.ErrorAs(t, err, &berr)
}

func TestConstructor_Variadic(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("a", container.Value("x")).MustRegister("b", container.Value("y"))
	c.MustRegister("joined", container.Constructor(func(parts ...string) string {
		out := ""
		for _, p := range parts {
			out += p
		}
		return out
	}), container.DependsOn("a", "b"))

	got, err := container.Resolve[string](c, "joined")
	require.NoError(t, err)
	require.Equal(t, "xy", got)
}

func TestRegister_Validation(t *testing.T) {
	c, _ := newContainer(t)

	tests := []struct {
		name string
		id   string
		impl container.Implementation
		opts []container.RegisterOption
	}{
		{"empty id", "", container.Value(1), nil},
		{"nil factory", "f", container.Factory(nil), nil},
		{"not a func", "k", container.Constructor(42), nil},
		{"arity mismatch", "k", container.Constructor(newWidgetFactory), nil},
		{"too many deps", "k", container.Constructor(func() int { return 1 }), []container.RegisterOption{container.DependsOn("a")}},
		{"bad second result", "k", container.Constructor(func() (int, int) { return 1, 2 }), nil},
		{"no results", "k", container.Constructor(func() {}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Register(tt.id, tt.impl, tt.opts...)
			var ierr *container.InvalidRegistrationError
			require.ErrorAs(t, err, &ierr)
		})
	}

	require.Panics(t, func() { c.MustRegister("", container.Value(1)) })
}

func TestRegister_EmptyDependencyIDsAreSkipped(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("dep", container.Value("d"))
	c.MustRegister("svc", container.Constructor(func(d string) string { return d + "!" }),
		container.DependsOn("", "dep", ""))

	reg, _ := c.GetRegistration("svc")
	require.Equal(t, []string{"dep"}, reg.Dependencies)

	got, err := c.Get("svc")
	require.NoError(t, err)
	require.Equal(t, "d!", got)
}

// ── Registration behaviour ────────────────────────────────────────────────────

func TestRegister_ValueWithAutoRegisterPublishesImmediately(t *testing.T) {
	c, bus := newContainer(t)
	cfg := &struct{ Name string }{"overlay"}

	c.MustRegister("config", container.Value(cfg), container.AutoRegister(),
		container.Metadata(map[string]any{"source": "env"}))

	require.Same(t, cfg, bus.GetService("config"))
	status, _ := bus.GetServiceStatus("config")
	require.Equal(t, events.StatusReady, status.Status)
	require.Equal(t, "env", status.Metadata["source"])

	reg, _ := c.GetRegistration("config")
	require.True(t, reg.Instantiated)
}

func TestRegister_FactoryAutoRegisterPublishesOnFirstGet(t *testing.T) {
	c, bus := newContainer(t)
	c.MustRegister("svc", container.Factory(func(...any) (any, error) { return &counter{}, nil }),
		container.AutoRegister())

	require.Nil(t, bus.GetService("svc"))
	inst, err := c.Get("svc")
	require.NoError(t, err)
	require.Same(t, inst, bus.GetService("svc"))
}

func TestRegister_AutoRegisterHandlerMayUseContainer(t *testing.T) {
	c, bus := newContainer(t)
	c.MustRegister("svc", container.Factory(func(...any) (any, error) { return "v", nil }), container.AutoRegister())

	var seen any
	bus.Subscribe(events.EventServiceRegistered, func(e events.Event) error {
		if e.Data.(events.ServiceRegistered).Name == "svc" {
			// Publication happens after the container lock is released.
			seen, _ = c.Get("svc")
		}
		return nil
	})

	_, err := c.Get("svc")
	require.NoError(t, err)
	require.Equal(t, "v", seen)
}

func TestRegister_ReplacingDropsCachedInstance(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("svc", container.Value("old"))
	got, _ := c.Get("svc")
	require.Equal(t, "old", got)

	c.MustRegister("svc", container.Value("new"))
	got, _ = c.Get("svc")
	require.Equal(t, "new", got)
	require.Equal(t, 1, countOf(c.IDs(), "svc"))
}

func TestRegisterInterface(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("impl", container.Factory(func(...any) (any, error) { return &counter{}, nil }))
	c.RegisterInterface("Counter", "impl")

	require.True(t, c.Has("Counter"))
	viaIface, err := c.Get("Counter")
	require.NoError(t, err)
	direct, _ := c.Get("impl")
	require.Same(t, direct, viaIface)

	// Self-references are ignored.
	c.RegisterInterface("loop", "loop")
	require.False(t, c.Has("loop"))
}

func TestRegisterInterface_FollowsOneLink(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("impl", container.Value("v"))
	c.RegisterInterface("B", "impl")
	c.RegisterInterface("A", "B")

	got, err := c.Get("A")
	require.NoError(t, err)
	require.Nil(t, got)
}

// ── Bookkeeping ───────────────────────────────────────────────────────────────

func TestFindByTag(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("a", container.Value("A"), container.Tags("widget"))
	c.MustRegister("b", container.Value("B"))
	c.MustRegister("c", container.Value("C"), container.Tags("widget", "x"))
	c.MustRegister("broken", container.Factory(func(...any) (any, error) { return nil, errors.New("x") }),
		container.Tags("widget"))

	require.Equal(t, []any{"A", "C"}, c.FindByTag("widget"))
	require.Empty(t, c.FindByTag("missing"))
}

func TestGetRegistration_ReturnsCopy(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("svc", container.Value(1), container.Tags("t"), container.Metadata(map[string]any{"k": 1}))

	reg, ok := c.GetRegistration("svc")
	require.True(t, ok)
	reg.Tags[0] = "mutated"
	reg.Metadata["k"] = 2

	again, _ := c.GetRegistration("svc")
	require.Equal(t, []string{"t"}, again.Tags)
	require.Equal(t, 1, again.Metadata["k"])
	require.Equal(t, container.KindValue, again.Kind)
	require.True(t, again.Singleton)

	_, ok = c.GetRegistration("missing")
	require.False(t, ok)
}

func TestUnregister(t *testing.T) {
	c, bus := newContainer(t)
	c.MustRegister("svc", container.Value("v"), container.AutoRegister())
	c.RegisterInterface("Svc", "svc")

	require.True(t, c.Unregister("svc"))
	require.False(t, c.Unregister("svc"))
	require.False(t, c.Has("svc"))
	require.False(t, c.Has("Svc"))
	require.Nil(t, bus.GetService("svc"))

	inst, err := c.Get("svc")
	require.NoError(t, err)
	require.Nil(t, inst)
}

func TestResolve(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("num", container.Value(7))

	n, err := container.Resolve[int](c, "num")
	require.NoError(t, err)
	require.Equal(t, 7, n)

	_, err = container.Resolve[string](c, "num")
	require.Error(t, err)

	_, err = container.Resolve[int](c, "missing")
	var nerr *container.NotRegisteredError
	require.ErrorAs(t, err, &nerr)
}

// ── Destroy ───────────────────────────────────────────────────────────────────

type disposable struct {
	name string
	log  *[]string
}

func (d *disposable) Destroy() { *d.log = append(*d.log, d.name) }

func TestDestroy_DisposesInReverseBuildOrder(t *testing.T) {
	bus := events.NewBus()
	c := container.New(bus)

	var log []string
	c.MustRegister("first", container.Factory(func(...any) (any, error) {
		return &disposable{name: "first", log: &log}, nil
	}))
	c.MustRegister("second", container.Constructor(func(_ *disposable) *disposable {
		return &disposable{name: "second", log: &log}
	}), container.DependsOn("first"))
	c.MustRegister("panics", container.Factory(func(...any) (any, error) { return panicky{}, nil }))
	c.MustRegister("plain", container.Value("not disposable"))

	_, err := c.Get("second")
	require.NoError(t, err)
	_, err = c.Get("panics")
	require.NoError(t, err)
	_, err = c.Get("plain")
	require.NoError(t, err)

	require.NotPanics(t, c.Destroy)
	assert.Equal(t, []string{"second", "first"}, log)
	assert.Empty(t, c.IDs())
	assert.Empty(t, bus.ListServices(), "bus is destroyed with the container")
}

type panicky struct{}

func (panicky) Destroy() { panic("teardown") }

func countOf(ids []string, id string) int {
	n := 0
	for _, s := range ids {
		if s == id {
			n++
		}
	}
	return n
}
