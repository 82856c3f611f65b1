package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/km-arc/go-overlay/framework/dom"
	"github.com/km-arc/go-overlay/framework/events"
	"github.com/km-arc/go-overlay/framework/metrics"
)

// Defaults for Manager options.
const (
	DefaultCacheSize   = 100
	DefaultFactoryWait = time.Second
	DefaultTheme       = "light"
)

const themePrefix = "theme-"

// Manager builds content subtrees, keeps a bounded cache of them and keeps
// the current one in sync with theme changes.
//
// The cache evicts in insertion order. Reads never refresh an entry; only
// storing a key again moves it to the newest position. Two callers building
// the same key at the same time both build; the second insert wins.
type Manager struct {
	bus *events.Bus

	// serializes Initialize so a slow factory lookup runs once
	initMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	factory     ComponentFactory
	injected    ComponentFactory
	fallback    ComponentFactory
	useCache    bool
	cache       *simplelru.LRU[string, *html.Node]
	purging     bool
	evicted     []string
	current     *html.Node
	disconnect  func()

	theme        string
	defaultTheme string

	factoryWait time.Duration
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// Option configures a Manager.
type Option func(*Manager)

// WithFactory sets the component factory, skipping the bus lookup.
func WithFactory(f ComponentFactory) Option {
	return func(m *Manager) { m.injected = f }
}

// WithFallbackFactory sets the factory used when none is found on the bus.
func WithFallbackFactory(f ComponentFactory) Option {
	return func(m *Manager) { m.fallback = f }
}

// WithCacheSize bounds the cache. Non-positive values keep the default.
func WithCacheSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.cache, _ = m.newCache(n)
		}
	}
}

// WithoutCache makes CreateContent build on every call.
func WithoutCache() Option {
	return func(m *Manager) { m.useCache = false }
}

// WithFactoryWait bounds how long Initialize waits for a factory service.
func WithFactoryWait(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.factoryWait = d
		}
	}
}

// WithDefaultTheme sets the theme applied to new content and used when a
// theme change names no theme.
func WithDefaultTheme(theme string) Option {
	return func(m *Manager) {
		if theme != "" {
			m.theme = theme
			m.defaultTheme = theme
		}
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// NewManager creates a Manager publishing on bus.
func NewManager(bus *events.Bus, opts ...Option) (*Manager, error) {
	if bus == nil {
		return nil, ErrBusRequired
	}
	m := &Manager{
		bus:          bus,
		useCache:     true,
		theme:        DefaultTheme,
		defaultTheme: DefaultTheme,
		factoryWait:  DefaultFactoryWait,
		logger:       zap.NewNop(),
	}
	m.cache, _ = m.newCache(DefaultCacheSize)
	for _, opt := range opts {
		opt(m)
	}
	m.factory = m.injected
	return m, nil
}

func (m *Manager) newCache(size int) (*simplelru.LRU[string, *html.Node], error) {
	return simplelru.NewLRU(size, func(key string, _ *html.Node) {
		m.evicted = append(m.evicted, key)
		if m.purging {
			return
		}
		m.metrics.CacheEvicted()
		m.logger.Debug("evicted cached content", zap.String("key", key))
	})
}

// componentReleaser is implemented by factories that keep the components
// they build, like Factory.
type componentReleaser interface {
	DestroyComponent(id string)
}

// takeEvictedLocked returns the keys that left the cache since the last
// call, with the factory that built them.
func (m *Manager) takeEvictedLocked() (ComponentFactory, []string) {
	keys := m.evicted
	m.evicted = nil
	return m.factory, keys
}

// releaseComponents frees the author components kept by f for keys that
// are no longer cached. It runs without m.mu held.
func releaseComponents(f ComponentFactory, keys []string) {
	r, ok := f.(componentReleaser)
	if !ok {
		return
	}
	for _, key := range keys {
		r.DestroyComponent(authorComponentID(key))
	}
}

func authorComponentID(key string) string { return "author-" + key }

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// Initialize makes sure a component factory is available and subscribes to
// content selection and theme changes. Calling it again is a no-op.
//
// The factory is, in order: the one given with WithFactory, the
// "componentFactory" bus service, the "UIComponentFactory" service once it
// is ready (waiting up to WithFactoryWait), and the fallback factory. The
// fallback defaults to a NewFactory using the manager's logger.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	done := m.initialized
	m.mu.Unlock()
	if done {
		return nil
	}

	factory, err := m.resolveFactory(ctx)
	if err != nil {
		return err
	}

	disconnect := m.bus.Connect(map[string]events.Handler{
		EventContentSelected: m.onContentSelected,
		EventThemeChanged:    m.onThemeChanged,
	}, events.WithOwner(m))

	m.mu.Lock()
	m.factory = factory
	m.disconnect = disconnect
	m.initialized = true
	m.mu.Unlock()

	m.logger.Debug("content manager initialized")
	m.bus.Publish(EventInitialized, m)
	return nil
}

func (m *Manager) resolveFactory(ctx context.Context) (ComponentFactory, error) {
	m.mu.Lock()
	f := m.factory
	m.mu.Unlock()
	if f != nil {
		return f, nil
	}

	if f, ok := m.bus.GetService(FactoryServiceID).(ComponentFactory); ok {
		return f, nil
	}

	svc, err := m.bus.EnsureService(ctx, LegacyFactoryServiceID, events.Timeout(m.factoryWait))
	if err == nil {
		if f, ok := svc.(ComponentFactory); ok {
			return f, nil
		}
		err = fmt.Errorf("service %q is %T, not a component factory", LegacyFactoryServiceID, svc)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("content: waiting for component factory: %w", ctxErr)
	}
	fallback := m.fallback
	if fallback == nil {
		fallback = NewFactory(m.logger)
	}
	m.logger.Info("using fallback component factory", zap.Error(err))
	return fallback, nil
}

// Destroy unsubscribes, detaches the current content, empties the cache
// and marks the manager uninitialized.
func (m *Manager) Destroy() {
	m.mu.Lock()
	disconnect := m.disconnect
	m.disconnect = nil
	m.initialized = false
	m.mu.Unlock()

	if disconnect != nil {
		disconnect()
	}
	m.ClearContent()
	m.ClearCache()

	m.mu.Lock()
	m.factory = m.injected
	m.mu.Unlock()
}

// Initialized reports whether Initialize has completed.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// ── Building ──────────────────────────────────────────────────────────────────

// CreateContent returns the subtree for p.
//
// On a cache hit the cached node itself is returned with its
// data-content-id and theme class refreshed; nothing is rebuilt or
// published. On a miss it
// publishes EventCreating, builds the subtree, caches it, makes it current
// and publishes EventCreated. If the body cannot be built it publishes
// EventError and returns a *BuildError. A payload without a key fails with
// ErrMissingID before anything else happens.
//
// Concurrent misses for the same key are not coalesced: each caller builds
// its own subtree and the last one cached wins.
func (m *Manager) CreateContent(p Payload) (*html.Node, error) {
	key, err := p.Key()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.useCache {
		if node, ok := m.cache.Peek(key); ok {
			dom.SetData(node, "contentId", key)
			swapTheme(node, m.theme)
			m.current = node
			m.mu.Unlock()
			m.metrics.CacheHit()
			return node, nil
		}
		m.metrics.CacheMiss()
	}
	factory := m.factory
	theme := m.theme
	m.mu.Unlock()

	m.bus.Publish(EventCreating, Lifecycle{Payload: p, Manager: m})

	node, err := m.build(factory, key, p, theme)
	if err != nil {
		m.metrics.BuildFailed()
		m.logger.Error("failed to build content", zap.String("key", key), zap.Error(err))
		m.bus.Publish(EventError, Lifecycle{Payload: p, Err: err, Manager: m})
		return nil, err
	}

	m.mu.Lock()
	if m.theme != theme {
		// The theme changed while building.
		swapTheme(node, m.theme)
	}
	if m.useCache {
		m.cache.Add(key, node)
	}
	m.current = node
	owner, evicted := m.takeEvictedLocked()
	m.mu.Unlock()
	releaseComponents(owner, evicted)

	m.bus.Publish(EventCreated, Lifecycle{Content: node, Payload: p, Manager: m})
	return node, nil
}

func (m *Manager) build(factory ComponentFactory, key string, p Payload, theme string) (*html.Node, error) {
	root := dom.NewElement("div", "marker-content")
	dom.SetData(root, "contentId", key)
	if theme != "" {
		dom.AddClass(root, themePrefix+theme)
	}

	dom.Append(root, m.buildAuthor(factory, key, p.Author))

	if factory == nil {
		body := dom.NewElement("div", "content")
		dom.SetText(body, p.Text)
		dom.Append(root, body)
		return root, nil
	}

	body, err := factory.CreateComponent(TypeContent, map[string]any{
		"id":   "content-" + key,
		"text": p.Text,
	})
	if err != nil {
		return nil, &BuildError{Key: key, Part: TypeContent, Err: err}
	}
	el := body.Element()
	if el == nil {
		return nil, &BuildError{Key: key, Part: TypeContent, Err: errors.New("component has no element")}
	}
	dom.Append(root, el)
	return root, nil
}

// buildAuthor never fails: anything short of a working author component
// degrades to a plain name block.
func (m *Manager) buildAuthor(factory ComponentFactory, key string, au Author) *html.Node {
	if factory != nil {
		// Kept by the factory only while the subtree can be cached; it is
		// released again when the key leaves the cache.
		comp, err := factory.CreateComponent(TypeAuthor, map[string]any{
			"id":    authorComponentID(key),
			"cache": m.useCache,
		})
		if err != nil {
			m.logger.Warn("author component unavailable, using fallback", zap.String("key", key), zap.Error(err))
		} else if setter, ok := comp.(AuthorSetter); ok {
			setter.SetAuthor(au)
			if el := comp.Element(); el != nil {
				return el
			}
		}
	}

	fallback := dom.NewElement("div", "author-fallback")
	dom.SetText(fallback, displayName(au))
	return fallback
}

// UpdateContent builds the subtree for p and puts it in place of the
// current content in the current content's parent. Without current
// content it only logs and returns (nil, nil).
func (m *Manager) UpdateContent(p Payload) (*html.Node, error) {
	m.mu.Lock()
	old := m.current
	m.mu.Unlock()
	if old == nil {
		m.logger.Debug("no current content to update")
		return nil, nil
	}

	node, err := m.CreateContent(p)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	swapped := node == old || dom.Replace(old, node)
	m.mu.Unlock()
	if !swapped {
		m.logger.Debug("current content is detached, nothing to swap")
	}
	return node, nil
}

// ── Themes ────────────────────────────────────────────────────────────────────

// Theme returns the theme applied to new content.
func (m *Manager) Theme() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.theme
}

// ApplyTheme records theme and swaps the theme class on the current
// content, if any. An empty theme means the default theme. The content is
// never rebuilt.
func (m *Manager) ApplyTheme(theme string) {
	m.mu.Lock()
	if theme == "" {
		theme = m.defaultTheme
	}
	m.theme = theme
	node := m.current
	if node != nil {
		swapTheme(node, theme)
	}
	m.mu.Unlock()

	if node == nil {
		return
	}
	m.bus.Publish(EventThemeApplied, ThemeApplied{Theme: theme, Content: node, Manager: m})
}

func swapTheme(node *html.Node, theme string) {
	dom.RemoveClassFunc(node, func(c string) bool { return strings.HasPrefix(c, themePrefix) })
	if theme != "" {
		dom.AddClass(node, themePrefix+theme)
	}
}

// ── Event handlers ────────────────────────────────────────────────────────────

func (m *Manager) onContentSelected(e events.Event) error {
	var p Payload
	switch data := e.Data.(type) {
	case Payload:
		p = data
	case *Payload:
		if data == nil {
			return errors.New("content: nil payload")
		}
		p = *data
	default:
		return fmt.Errorf("content: unexpected %s payload %T", e.Name, e.Data)
	}

	if _, err := m.CreateContent(p); err != nil && errors.Is(err, ErrMissingID) {
		// Build failures publish EventError themselves.
		m.bus.Publish(EventError, Lifecycle{Payload: p, Err: err, Manager: m})
	}
	return nil
}

func (m *Manager) onThemeChanged(e events.Event) error {
	var theme string
	switch data := e.Data.(type) {
	case ThemeChange:
		theme = data.Theme
	case *ThemeChange:
		if data != nil {
			theme = data.Theme
		}
	case string:
		theme = data
	case map[string]any:
		theme, _ = data["theme"].(string)
	}

	m.ApplyTheme(theme)
	return nil
}
