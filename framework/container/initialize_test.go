package container_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/km-arc/go-overlay/framework/container"
	"github.com/km-arc/go-overlay/framework/events"
)

// initLog records Initialize calls across services.
type initLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *initLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *initLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type initService struct {
	name  string
	log   *initLog
	err   error
	block bool
}

func (s *initService) Initialize(ctx context.Context) error {
	s.log.add(s.name)
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func registerInit(c *container.Container, svc *initService, opts ...container.RegisterOption) {
	c.MustRegister(svc.name, container.Value(svc), opts...)
}

// ── Initialize ────────────────────────────────────────────────────────────────

func TestInitialize_MarksServiceReady(t *testing.T) {
	c, bus := newContainer(t)
	log := &initLog{}
	c.MustRegister("svc", container.Factory(func(...any) (any, error) {
		return &initService{name: "svc", log: log}, nil
	}), container.AutoRegister())

	var changes []events.StatusChanged
	bus.Subscribe(events.EventServiceStatusChanged, func(e events.Event) error {
		changes = append(changes, e.Data.(events.StatusChanged))
		return nil
	})

	inst, err := c.Initialize(context.Background(), "svc")
	require.NoError(t, err)
	require.IsType(t, &initService{}, inst)
	require.Equal(t, []string{"svc"}, log.snapshot())

	require.Len(t, changes, 1)
	require.Equal(t, events.StatusReady, changes[0].Status)
	require.Contains(t, changes[0].Metadata, "initializedAt")
}

func TestInitialize_WithoutInitializeMethod(t *testing.T) {
	c, _ := newContainer(t)
	c.MustRegister("plain", container.Value("v"))

	inst, err := c.Initialize(context.Background(), "plain")
	require.NoError(t, err)
	require.Equal(t, "v", inst)
}

func TestInitialize_Unknown(t *testing.T) {
	c, _ := newContainer(t)
	_, err := c.Initialize(context.Background(), "ghost")
	var nerr *container.NotRegisteredError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, "ghost", nerr.ID)
}

func TestInitialize_Error(t *testing.T) {
	c, _ := newContainer(t)
	boom := errors.New("boom")
	registerInit(c, &initService{name: "svc", log: &initLog{}, err: boom})

	_, err := c.Initialize(context.Background(), "svc")
	var ierr *container.InitializationError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, "svc", ierr.ID)
	require.ErrorIs(t, err, boom)
}

func TestInitialize_Timeout(t *testing.T) {
	c, bus := newContainer(t)
	registerInit(c, &initService{name: "slow", log: &initLog{}, block: true}, container.AutoRegister())

	start := time.Now()
	_, err := c.Initialize(context.Background(), "slow", container.InitTimeout(20*time.Millisecond))
	require.ErrorIs(t, err, container.ErrTimeout)
	var terr *container.InitTimeoutError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "slow", terr.ID)
	require.Less(t, time.Since(start), time.Second)

	// The status update only follows a successful start.
	status, _ := bus.GetServiceStatus("slow")
	require.Equal(t, events.StatusReady, status.Status)
	require.NotContains(t, status.Metadata, "initializedAt")
}

func TestInitialize_ContextCancelled(t *testing.T) {
	c, _ := newContainer(t)
	registerInit(c, &initService{name: "slow", log: &initLog{}, block: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Initialize(ctx, "slow", container.InitTimeout(time.Minute))
	require.ErrorIs(t, err, context.Canceled)
}

// ── InitializeAll ─────────────────────────────────────────────────────────────

func TestInitOrder_DependenciesFirst(t *testing.T) {
	c, _ := newContainer(t)
	v := container.Value(nil)
	c.MustRegister("app", container.Constructor(func(_, _ any) any { return 1 }), container.DependsOn("db", "cache"))
	c.MustRegister("cache", container.Constructor(func(_ any) any { return 1 }), container.DependsOn("db"))
	c.MustRegister("db", v)
	c.MustRegister("orphan", container.Constructor(func(_ any) any { return 1 }), container.DependsOn("ghost"))

	require.Equal(t, []string{
		"db", "cache", "app",
		container.EventManagerID,
		"orphan",
		container.ServiceContainerID,
	}, c.InitOrder())
}

func TestInitializeAll_Sequential(t *testing.T) {
	c, bus := newContainer(t)
	log := &initLog{}

	c.MustRegister("A", container.Constructor(func(b, c *initService) *initService {
		return &initService{name: "A", log: log}
	}), container.DependsOn("B", "C"))
	registerInit(c, &initService{name: "B", log: log})
	c.MustRegister("C", container.Constructor(func(b *initService) *initService {
		return &initService{name: "C", log: log}
	}), container.DependsOn("B"))

	var summary container.InitSummary
	bus.Subscribe(container.EventServicesInitialized, func(e events.Event) error {
		summary = e.Data.(container.InitSummary)
		return nil
	})

	results, err := c.InitializeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "A"}, log.snapshot())
	require.Len(t, results, 5)
	require.Equal(t, 5, summary.Successful)
	require.Zero(t, summary.Failed)
}

func TestInitializeAll_NonCriticalFailureContinues(t *testing.T) {
	c, bus := newContainer(t)
	log := &initLog{}
	boom := errors.New("boom")
	registerInit(c, &initService{name: "a", log: log, err: boom})
	registerInit(c, &initService{name: "b", log: log})

	var summary container.InitSummary
	bus.Subscribe(container.EventServicesInitialized, func(e events.Event) error {
		summary = e.Data.(container.InitSummary)
		return nil
	})

	results, err := c.InitializeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, log.snapshot())
	require.NotContains(t, results, "a")
	require.Contains(t, results, "b")

	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	require.Equal(t, "a", summary.Errors[0].ID)
	require.ErrorIs(t, summary.Errors[0].Err, boom)
}

func TestInitializeAll_CriticalFailureAborts(t *testing.T) {
	c, _ := newContainer(t)
	log := &initLog{}
	boom := errors.New("boom")
	registerInit(c, &initService{name: "a", log: log, err: boom}, container.Critical())
	registerInit(c, &initService{name: "b", log: log})

	_, err := c.InitializeAll(context.Background())
	var cerr *container.CriticalServiceError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "a", cerr.ID)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"a"}, log.snapshot())
}

func TestInitializeAll_Parallel(t *testing.T) {
	c, bus := newContainer(t)
	log := &initLog{}
	registerInit(c, &initService{name: "a", log: log, err: errors.New("a failed")}, container.Critical())
	registerInit(c, &initService{name: "b", log: log, err: errors.New("b failed")}, container.Critical())
	registerInit(c, &initService{name: "c", log: log})
	registerInit(c, &initService{name: "d", log: log, err: errors.New("d failed")})

	var summary container.InitSummary
	bus.Subscribe(container.EventServicesInitialized, func(e events.Event) error {
		summary = e.Data.(container.InitSummary)
		return nil
	})

	results, err := c.InitializeAll(context.Background(), container.Parallel())
	require.Error(t, err)

	var ids []string
	for _, e := range multierr.Errors(err) {
		var cerr *container.CriticalServiceError
		require.ErrorAs(t, e, &cerr)
		ids = append(ids, cerr.ID)
	}
	require.ElementsMatch(t, []string{"a", "b"}, ids)
	require.ElementsMatch(t, []string{"a", "b", "c", "d"}, log.snapshot())

	require.Contains(t, results, "c")
	require.Equal(t, 3, summary.Failed)
	require.Equal(t, 3, summary.Successful) // c, eventManager, serviceContainer
}

func TestInitializeAll_SlowServiceGetsTimedOut(t *testing.T) {
	c, _ := newContainer(t)
	log := &initLog{}
	registerInit(c, &initService{name: "slow", log: log, block: true})
	registerInit(c, &initService{name: "zfast", log: log})

	// Each service is given at least one second regardless of the total.
	start := time.Now()
	results, err := c.InitializeAll(context.Background(), container.AllTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
	require.NotContains(t, results, "slow")
}
