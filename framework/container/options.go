package container

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/km-arc/go-overlay/framework/metrics"
)

// Default timeouts for Initialize and InitializeAll.
const (
	DefaultInitTimeout    = 10 * time.Second
	DefaultInitAllTimeout = 30 * time.Second

	// minServiceBudget is the smallest timeout InitializeAll hands a single
	// service, however little of the overall budget is left.
	minServiceBudget = time.Second
)

// ── Container options ─────────────────────────────────────────────────────────

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces the clock used for initialization timing.
func WithClock(cl clock.Clock) Option {
	return func(c *Container) {
		if cl != nil {
			c.clock = cl
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Container) { c.metrics = m }
}

// ── Register options ──────────────────────────────────────────────────────────

// RegisterOption configures a single registration.
type RegisterOption func(*Registration)

// Transient makes every Get build a new instance. Registrations are
// singletons by default.
func Transient() RegisterOption {
	return func(r *Registration) { r.Singleton = false }
}

// AutoRegister publishes the instance into the event bus with status ready
// as soon as it exists.
func AutoRegister() RegisterOption {
	return func(r *Registration) { r.AutoRegister = true }
}

// DependsOn declares the IDs resolved and passed to the implementation, in
// order.
func DependsOn(ids ...string) RegisterOption {
	return func(r *Registration) { r.Dependencies = append(r.Dependencies, ids...) }
}

// Tags adds lookup tags, also forwarded to the bus on auto-registration.
func Tags(tags ...string) RegisterOption {
	return func(r *Registration) { r.Tags = append(r.Tags, tags...) }
}

// Metadata merges descriptive metadata into the registration.
func Metadata(m map[string]any) RegisterOption {
	return func(r *Registration) {
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, len(m))
		}
		for k, v := range m {
			r.Metadata[k] = v
		}
	}
}

// Critical makes a failure of this service abort InitializeAll.
// Equivalent to Metadata(map[string]any{"critical": true}).
func Critical() RegisterOption {
	return Metadata(map[string]any{MetadataCritical: true})
}

// MetadataCritical is the metadata key read by InitializeAll.
const MetadataCritical = "critical"

// ── Initialize options ────────────────────────────────────────────────────────

// InitOption configures Initialize and InitializeAll.
type InitOption func(*initOptions)

type initOptions struct {
	timeout  time.Duration
	parallel bool
}

// InitTimeout bounds a single Initialize call.
func InitTimeout(d time.Duration) InitOption {
	return func(o *initOptions) { o.timeout = d }
}

// AllTimeout bounds InitializeAll as a whole.
func AllTimeout(d time.Duration) InitOption {
	return InitTimeout(d)
}

// Parallel makes InitializeAll start every service at once.
func Parallel() InitOption {
	return func(o *initOptions) { o.parallel = true }
}
