package providers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/km-arc/go-overlay/framework/config"
	"github.com/km-arc/go-overlay/framework/container"
	"github.com/km-arc/go-overlay/framework/content"
	"github.com/km-arc/go-overlay/framework/diagnostics"
	"github.com/km-arc/go-overlay/framework/dom"
	"github.com/km-arc/go-overlay/framework/events"
	"github.com/km-arc/go-overlay/framework/metrics"
	"github.com/km-arc/go-overlay/framework/providers"
	"github.com/km-arc/go-overlay/routing"
)

func mustLoad(t *testing.T, files ...string) *config.Config {
	t.Helper()
	cfg, err := config.Load(files...)
	require.NoError(t, err)
	return cfg
}

func registerCore(t *testing.T, cfg *config.Config) *container.Container {
	t.Helper()
	logger := zaptest.NewLogger(t)
	c := container.New(nil, container.WithLogger(logger))
	t.Cleanup(c.Destroy)

	reg := container.NewProviderRegistry(c)
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, &providers.ConfigServiceProvider{Config: cfg, Logger: logger, Metrics: metrics.NewCollector("test")}))
	require.NoError(t, reg.Register(ctx, &providers.ContentServiceProvider{}))
	require.NoError(t, reg.Register(ctx, &providers.DiagnosticsServiceProvider{}))
	require.NoError(t, reg.Boot(ctx))
	return c
}

func TestConfigServiceProvider_RequiresConfig(t *testing.T) {
	c := container.New(nil)
	t.Cleanup(c.Destroy)
	err := (&providers.ConfigServiceProvider{}).Register(c)
	require.ErrorContains(t, err, "config is required")
}

func TestContentServiceProvider_Registrations(t *testing.T) {
	c := registerCore(t, mustLoad(t, "testdata/missing.env"))

	reg, ok := c.GetRegistration(content.ManagerServiceID)
	require.True(t, ok)
	assert.Equal(t, container.KindConstructor, reg.Kind)
	assert.True(t, reg.IsCritical())
	assert.Equal(t,
		[]string{container.EventManagerID, content.FactoryServiceID, providers.ConfigID, providers.LoggerID, providers.MetricsID},
		reg.Dependencies)

	// Resolving the manager publishes it and its factory.
	manager, err := container.Resolve[*content.Manager](c, content.ManagerServiceID)
	require.NoError(t, err)
	require.NotNil(t, manager)
	assert.NotNil(t, c.Bus().GetService(content.FactoryServiceID))
	assert.Same(t, manager, c.Bus().GetService(content.ManagerServiceID))
}

func TestNewContentManager_AppliesConfig(t *testing.T) {
	cfg := mustLoad(t, "testdata/missing.env")
	cfg.Content.CacheSize = 1
	cfg.Content.DefaultTheme = "sepia"
	c := registerCore(t, cfg)

	inst, err := c.Initialize(context.Background(), content.ManagerServiceID)
	require.NoError(t, err)
	manager := inst.(*content.Manager)
	assert.True(t, manager.Initialized())
	assert.Equal(t, "sepia", manager.Theme())

	c.Bus().Publish(content.EventContentSelected, content.Payload{ID: "1"})
	c.Bus().Publish(content.EventContentSelected, content.Payload{ID: "2"})
	assert.Equal(t, []string{"2"}, manager.CachedKeys())

	st, _ := c.Bus().GetServiceStatus(content.ManagerServiceID)
	assert.Equal(t, events.StatusReady, st.Status)
}

func TestNewContentManager_WithoutConfig(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Destroy)

	m, err := providers.NewContentManager(bus, nil, nil, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.Equal(t, content.DefaultTheme, m.Theme())

	node, err := m.CreateContent(content.Payload{ID: "1", Text: "plain"})
	require.NoError(t, err)
	assert.NotNil(t, dom.Find(node, "author-fallback"))
}

func TestNewContentManager_DisabledCache(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Destroy)
	cfg := mustLoad(t, "testdata/missing.env")
	cfg.Content.UseCache = false

	m, err := providers.NewContentManager(bus, content.NewFactory(nil), cfg, nil, nil)
	require.NoError(t, err)
	_, err = m.CreateContent(content.Payload{ID: "1"})
	require.NoError(t, err)
	assert.Empty(t, m.CachedKeys())
}

func TestDiagnosticsServiceProvider(t *testing.T) {
	c := registerCore(t, mustLoad(t, "testdata/missing.env"))

	router, err := container.Resolve[*routing.Router](c, diagnostics.RouterServiceID)
	require.NoError(t, err)
	require.NotNil(t, router)
}
