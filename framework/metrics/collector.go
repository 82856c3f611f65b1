// Package metrics holds the Prometheus collectors shared by the event bus,
// the service container and the content manager.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so that several collectors can coexist
// in one process (tests build one per case).
//
// A nil *Collector is valid; every recording method is a no-op on nil.
type Collector struct {
	registry *prometheus.Registry

	EventsPublished  *prometheus.CounterVec
	HandlerErrors    *prometheus.CounterVec
	WaitTimeouts     prometheus.Counter
	Resolutions      *prometheus.CounterVec
	InitDuration     *prometheus.HistogramVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   prometheus.Counter
	ContentBuildErrs prometheus.Counter
}

// NewCollector creates and registers all metrics under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of events published on the bus",
			},
			[]string{"event"},
		),
		HandlerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_errors_total",
				Help:      "Total number of failed event handler invocations",
			},
			[]string{"event"},
		),
		WaitTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_wait_timeouts_total",
				Help:      "Total number of EnsureService calls that timed out",
			},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_resolutions_total",
				Help:      "Total number of container resolutions by outcome",
			},
			[]string{"outcome"},
		),
		InitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "service_initialize_duration_seconds",
				Help:      "Service Initialize duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "outcome"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_cache_hits_total",
				Help:      "Total number of content cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_cache_misses_total",
				Help:      "Total number of content cache misses",
			},
		),
		CacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_cache_evictions_total",
				Help:      "Total number of content cache evictions",
			},
		),
		ContentBuildErrs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_build_errors_total",
				Help:      "Total number of aborted content builds",
			},
		),
	}

	registry.MustRegister(
		c.EventsPublished,
		c.HandlerErrors,
		c.WaitTimeouts,
		c.Resolutions,
		c.InitDuration,
		c.CacheHits,
		c.CacheMisses,
		c.CacheEvictions,
		c.ContentBuildErrs,
	)

	return c
}

// Registry exposes the underlying registry (for Gather in tests).
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an http.Handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// EventPublished counts one Publish of event.
func (c *Collector) EventPublished(event string) {
	if c != nil {
		c.EventsPublished.WithLabelValues(event).Inc()
	}
}

// HandlerFailed counts a handler of event that returned an error or panicked.
func (c *Collector) HandlerFailed(event string) {
	if c != nil {
		c.HandlerErrors.WithLabelValues(event).Inc()
	}
}

// WaitTimedOut counts an EnsureService call that ran out of time.
func (c *Collector) WaitTimedOut() {
	if c != nil {
		c.WaitTimeouts.Inc()
	}
}

// Resolved records a container resolution by outcome ("built", "cached",
// "error", "circular" or "unknown").
func (c *Collector) Resolved(outcome string) {
	if c != nil {
		c.Resolutions.WithLabelValues(outcome).Inc()
	}
}

// Initialized observes how long service took to initialize, by outcome.
func (c *Collector) Initialized(service, outcome string, seconds float64) {
	if c != nil {
		c.InitDuration.WithLabelValues(service, outcome).Observe(seconds)
	}
}

// CacheHit counts a content cache hit.
func (c *Collector) CacheHit() {
	if c != nil {
		c.CacheHits.Inc()
	}
}

// CacheMiss counts a content cache miss.
func (c *Collector) CacheMiss() {
	if c != nil {
		c.CacheMisses.Inc()
	}
}

// CacheEvicted counts a subtree evicted from a full content cache.
func (c *Collector) CacheEvicted() {
	if c != nil {
		c.CacheEvictions.Inc()
	}
}

// BuildFailed counts a content build that failed.
func (c *Collector) BuildFailed() {
	if c != nil {
		c.ContentBuildErrs.Inc()
	}
}
