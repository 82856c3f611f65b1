package container

import (
	"context"
	"fmt"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups related registrations.
//
// Register is called as soon as the provider is added and must only
// register services. Boot is called after every provider has registered,
// so it may resolve anything.
//
//	type CacheProvider struct{ container.BaseProvider }
//
//	func (p *CacheProvider) Register(c *container.Container) error {
//	    return c.Register("cache", container.Constructor(newCache),
//	        container.DependsOn("config"))
//	}
type ServiceProvider interface {
	Register(c *Container) error
	Boot(ctx context.Context, c *Container) error
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable no-op Boot.
type BaseProvider struct{}

func (p *BaseProvider) Boot(context.Context, *Container) error { return nil }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry registers and boots ServiceProviders against one
// container. It is not safe for concurrent use; providers are wired during
// start-up.
type ProviderRegistry struct {
	c          *Container
	providers  []ServiceProvider
	registered map[ServiceProvider]bool
	booted     bool
}

// NewProviderRegistry creates a registry bound to c.
func NewProviderRegistry(c *Container) *ProviderRegistry {
	return &ProviderRegistry{
		c:          c,
		registered: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register. Adding the same provider
// twice is a no-op. A provider added after Boot is booted immediately.
func (r *ProviderRegistry) Register(ctx context.Context, provider ServiceProvider) error {
	if r.registered[provider] {
		return nil
	}
	if err := provider.Register(r.c); err != nil {
		return fmt.Errorf("registering %T: %w", provider, err)
	}
	r.registered[provider] = true
	r.providers = append(r.providers, provider)

	if r.booted {
		if err := provider.Boot(ctx, r.c); err != nil {
			return fmt.Errorf("booting %T: %w", provider, err)
		}
	}
	return nil
}

// Boot calls Boot on every registered provider in registration order,
// stopping at the first error. Later calls are no-ops.
func (r *ProviderRegistry) Boot(ctx context.Context) error {
	if r.booted {
		return nil
	}
	r.booted = true
	for _, provider := range r.providers {
		if err := provider.Boot(ctx, r.c); err != nil {
			return fmt.Errorf("booting %T: %w", provider, err)
		}
	}
	return nil
}

// Booted reports whether Boot has been called.
func (r *ProviderRegistry) Booted() bool { return r.booted }

// Providers returns the registered providers in registration order.
func (r *ProviderRegistry) Providers() []ServiceProvider { return r.providers }
