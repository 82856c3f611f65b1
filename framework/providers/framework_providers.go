package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/km-arc/go-overlay/framework/config"
	"github.com/km-arc/go-overlay/framework/container"
	"github.com/km-arc/go-overlay/framework/content"
	"github.com/km-arc/go-overlay/framework/diagnostics"
	"github.com/km-arc/go-overlay/framework/events"
	"github.com/km-arc/go-overlay/framework/metrics"
)

// Container IDs bound by the core providers.
const (
	ConfigID  = "config"
	LoggerID  = "logger"
	MetricsID = "metrics"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the loaded configuration and the shared
// logger and metrics collector.
//
// Bound IDs:
//   - "config"  → *config.Config  (published on the bus)
//   - "logger"  → *zap.Logger
//   - "metrics" → *metrics.Collector
type ConfigServiceProvider struct {
	container.BaseProvider
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

func (p *ConfigServiceProvider) Register(c *container.Container) error {
	if p.Config == nil {
		return fmt.Errorf("providers: config is required")
	}
	if err := c.Register(ConfigID, container.Value(p.Config),
		container.AutoRegister(),
		container.Tags("core", "config"),
	); err != nil {
		return err
	}
	if err := c.Register(LoggerID, container.Value(p.Logger), container.Tags("core")); err != nil {
		return err
	}
	return c.Register(MetricsID, container.Value(p.Metrics), container.Tags("core"))
}

// ── ContentServiceProvider ────────────────────────────────────────────────────

// ContentServiceProvider registers the component factory and the content
// manager. The manager is initialized by InitializeAll like any other
// Initializable service.
//
// Bound IDs:
//   - "componentFactory"     → *content.Factory  (published on the bus)
//   - "markerContentManager" → *content.Manager  (published, critical)
type ContentServiceProvider struct {
	container.BaseProvider
}

func (p *ContentServiceProvider) Register(c *container.Container) error {
	if err := c.Register(content.FactoryServiceID, container.Constructor(content.NewFactory),
		container.DependsOn(LoggerID),
		container.AutoRegister(),
		container.Tags("ui"),
	); err != nil {
		return err
	}
	return c.Register(content.ManagerServiceID, container.Constructor(NewContentManager),
		container.DependsOn(container.EventManagerID, content.FactoryServiceID, ConfigID, LoggerID, MetricsID),
		container.AutoRegister(),
		container.Tags("ui", "content"),
		container.Critical(),
	)
}

// Boot logs content build failures, which otherwise only reach bus
// subscribers.
func (p *ContentServiceProvider) Boot(_ context.Context, c *container.Container) error {
	logger, _ := container.Resolve[*zap.Logger](c, LoggerID)
	if logger == nil {
		return nil
	}
	c.Bus().Subscribe(content.EventError, func(e events.Event) error {
		if lc, ok := e.Data.(content.Lifecycle); ok {
			logger.Warn("content error", zap.String("id", lc.Payload.ID), zap.Error(lc.Err))
		}
		return nil
	})
	return nil
}

// NewContentManager builds the content manager from its registered
// dependencies. cfg may be nil, in which case the manager defaults apply.
func NewContentManager(bus *events.Bus, factory content.ComponentFactory, cfg *config.Config, logger *zap.Logger, m *metrics.Collector) (*content.Manager, error) {
	opts := []content.Option{
		content.WithLogger(logger),
		content.WithMetrics(m),
	}
	if factory != nil {
		opts = append(opts, content.WithFactory(factory))
	}
	if cfg != nil {
		opts = append(opts,
			content.WithCacheSize(cfg.Content.CacheSize),
			content.WithFactoryWait(cfg.Content.FactoryWait),
			content.WithDefaultTheme(cfg.Content.DefaultTheme),
		)
		if !cfg.Content.UseCache {
			opts = append(opts, content.WithoutCache())
		}
	}
	return content.NewManager(bus, opts...)
}

// ── DiagnosticsServiceProvider ────────────────────────────────────────────────

// DiagnosticsServiceProvider registers the diagnostics HTTP router.
//
// Bound IDs:
//   - "router" → *routing.Router
type DiagnosticsServiceProvider struct {
	container.BaseProvider
}

func (p *DiagnosticsServiceProvider) Register(c *container.Container) error {
	return c.Register(diagnostics.RouterServiceID, container.Constructor(diagnostics.NewRouter),
		container.DependsOn(container.ServiceContainerID, content.ManagerServiceID, MetricsID, LoggerID),
		container.Tags("http"),
	)
}
