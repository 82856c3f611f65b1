package events

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/km-arc/go-overlay/framework/metrics"
)

// DefaultEnsureTimeout is used by EnsureService when no Timeout is given.
const DefaultEnsureTimeout = 5 * time.Second

// ── Bus options ───────────────────────────────────────────────────────────────

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces the wall clock used for timestamps and wait timers.
func WithClock(c clock.Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithDefaultTimeout overrides DefaultEnsureTimeout for this bus.
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.defaultTimeout = d
		}
	}
}

// ── Subscribe options ─────────────────────────────────────────────────────────

// SubscribeOption configures a single subscription.
type SubscribeOption func(*listener)

// WithOwner tags the subscription with an owner value so that every
// subscription of that owner can be removed with UnsubscribeOwner.
func WithOwner(owner any) SubscribeOption {
	return func(l *listener) { l.owner = owner }
}

// ── RegisterService options ───────────────────────────────────────────────────

// RegisterOption configures RegisterService.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	overwrite     bool
	initialStatus Status
	tags          []string
	metadata      map[string]any
}

// Overwrite allows replacing an existing service of the same name.
func Overwrite() RegisterOption {
	return func(o *registerOptions) { o.overwrite = true }
}

// WithInitialStatus sets the status recorded at registration.
// Default: StatusRegistered.
func WithInitialStatus(s Status) RegisterOption {
	return func(o *registerOptions) { o.initialStatus = s }
}

// WithTags indexes the service under the given tags.
func WithTags(tags ...string) RegisterOption {
	return func(o *registerOptions) { o.tags = append(o.tags, tags...) }
}

// WithMetadata attaches descriptive metadata to the status record.
func WithMetadata(m map[string]any) RegisterOption {
	return func(o *registerOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]any, len(m))
		}
		for k, v := range m {
			o.metadata[k] = v
		}
	}
}

// ── EnsureService options ─────────────────────────────────────────────────────

// EnsureOption configures EnsureService.
type EnsureOption func(*ensureOptions)

type ensureOptions struct {
	timeout  time.Duration
	required Status
	optional bool
}

// Timeout bounds how long EnsureService waits.
func Timeout(d time.Duration) EnsureOption {
	return func(o *ensureOptions) { o.timeout = d }
}

// RequiredStatus sets the status to wait for. Default: StatusReady.
func RequiredStatus(s Status) EnsureOption {
	return func(o *ensureOptions) { o.required = s }
}

// Optional makes a timeout resolve to (nil, nil) instead of an error.
func Optional() EnsureOption {
	return func(o *ensureOptions) { o.optional = true }
}
