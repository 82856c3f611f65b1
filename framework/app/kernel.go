package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-overlay/framework/config"
	"github.com/km-arc/go-overlay/framework/container"
	"github.com/km-arc/go-overlay/framework/content"
	"github.com/km-arc/go-overlay/framework/diagnostics"
	"github.com/km-arc/go-overlay/framework/events"
	"github.com/km-arc/go-overlay/framework/log"
	"github.com/km-arc/go-overlay/framework/metrics"
	"github.com/km-arc/go-overlay/framework/providers"
	"github.com/km-arc/go-overlay/routing"
)

// Version of the overlay runtime.
const Version = "0.1.0"

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "overlay"

// Application is the composition root. It embeds the service container
// and the provider registry so callers can register services and providers
// on it directly.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	summary *container.InitSummary
}

type options struct {
	envFiles  []string
	cfg       *config.Config
	logger    *zap.Logger
	providers []container.ServiceProvider
}

// Option configures New.
type Option func(*options)

// WithEnvFiles sets the .env files read by config.Load.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.envFiles = files }
}

// WithConfig uses cfg instead of loading one from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger uses l instead of building one from the log configuration.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProviders registers extra providers after the core ones.
func WithProviders(ps ...container.ServiceProvider) Option {
	return func(o *options) { o.providers = append(o.providers, ps...) }
}

// New loads and validates the configuration, builds the logger, metrics,
// event bus and container, and registers the core providers (config,
// content and, when enabled, diagnostics). Nothing is built or
// initialized until Boot.
func New(ctx context.Context, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		if cfg, err = config.Load(o.envFiles...); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = log.New(cfg.Log); err != nil {
			return nil, err
		}
	}
	logger = logger.With(zap.String("app", cfg.App.Name))

	m := metrics.NewCollector(MetricsNamespace)
	bus := events.NewBus(
		events.WithLogger(logger.Named("events")),
		events.WithMetrics(m),
		events.WithDefaultTimeout(cfg.Events.EnsureTimeout),
	)
	c := container.New(bus,
		container.WithLogger(logger.Named("container")),
		container.WithMetrics(m),
	)

	a := &Application{
		Container: c,
		Providers: container.NewProviderRegistry(c),
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
	bus.Subscribe(container.EventServicesInitialized, a.recordSummary)

	core := []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg, Logger: logger, Metrics: m},
		&providers.ContentServiceProvider{},
	}
	if cfg.Diagnostics.Enabled {
		core = append(core, &providers.DiagnosticsServiceProvider{})
	}
	for _, p := range append(core, o.providers...) {
		if err := a.Providers.Register(ctx, p); err != nil {
			c.Destroy()
			return nil, err
		}
	}
	return a, nil
}

func (a *Application) recordSummary(e events.Event) error {
	s, ok := e.Data.(container.InitSummary)
	if !ok {
		return fmt.Errorf("app: unexpected %s payload %T", e.Name, e.Data)
	}
	a.mu.Lock()
	a.summary = &s
	a.mu.Unlock()
	return nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(ctx context.Context, provider container.ServiceProvider) error {
	return a.Providers.Register(ctx, provider)
}

// Boot runs the Boot phase of every provider, then initializes every
// registered service in dependency order within the configured budget.
// A failing critical service fails Boot.
func (a *Application) Boot(ctx context.Context) error {
	if err := a.Providers.Boot(ctx); err != nil {
		return err
	}

	initOpts := []container.InitOption{container.AllTimeout(a.cfg.Container.InitAllTimeout)}
	if a.cfg.Container.Parallel {
		initOpts = append(initOpts, container.Parallel())
	}
	if _, err := a.InitializeAll(ctx, initOpts...); err != nil {
		return fmt.Errorf("app: initializing services: %w", err)
	}
	return nil
}

// Summary returns the outcome of the last InitializeAll, if any.
func (a *Application) Summary() (container.InitSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.summary == nil {
		return container.InitSummary{}, false
	}
	return *a.summary, true
}

// Shutdown destroys every service, the bus last, and flushes the logger.
func (a *Application) Shutdown() {
	a.Container.Destroy()
	_ = a.logger.Sync()
}

// ── Accessors ────────────────────────────────────────────────────────────────

func (a *Application) Config() *config.Config      { return a.cfg }
func (a *Application) Logger() *zap.Logger         { return a.logger }
func (a *Application) Metrics() *metrics.Collector { return a.metrics }
func (a *Application) ContentManager() (*content.Manager, error) {
	return container.Resolve[*content.Manager](a.Container, content.ManagerServiceID)
}

// Router resolves the diagnostics router. It fails when diagnostics are
// disabled.
func (a *Application) Router() (*routing.Router, error) {
	return container.Resolve[*routing.Router](a.Container, diagnostics.RouterServiceID)
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsProduction() bool  { return a.cfg.App.IsProduction() }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }
