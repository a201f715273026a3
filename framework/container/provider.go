package container

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/container/registry"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider mirrors Laravel's Illuminate\Support\ServiceProvider.
//
// Every provider must implement at minimum Register().
// Boot() is called after ALL providers have been registered, making it safe
// to resolve other services inside Boot().
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    container.Lazy(app, func() *Mailer {
//	        return NewMailer(container.MustGet[*config.Config](app))
//	    })
//	}
//
//	func (p *AppServiceProvider) Boot(app *container.Container) {
//	    container.MustGet[*zap.Logger](app).Info("application booted")
//	}
type ServiceProvider interface {
	// Register adds services to the container.
	// Do NOT resolve other services here; use Boot() for that.
	Register(app *Container)

	// Boot is called after all providers are registered.
	Boot(app *Container)

	// Provides returns the keys this provider registers. Only deferred
	// providers need it.
	//
	//	func (p *CacheProvider) Provides() []container.Key {
	//	    return []container.Key{container.KeyFor[*Cache]()}
	//	}
	Provides() []Key

	// IsDeferred returns true if the provider should only be registered when
	// one of its Provides() keys is first resolved.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct that provides no-op implementations
// of Boot(), Provides(), and IsDeferred().
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(app *container.Container) { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Container) {}
func (p *BaseProvider) Provides() []Key   { return nil }
func (p *BaseProvider) IsDeferred() bool  { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry manages registration and booting of ServiceProviders,
// including deferred providers.
//
// It mirrors Laravel's Application::registerConfiguredProviders and
// Application::bootProviders. Register and Boot are meant to be called from
// one goroutine during startup; deferred providers may load from any
// goroutine afterwards.
type ProviderRegistry struct {
	app        *Container
	eager      []ServiceProvider
	registered map[ServiceProvider]bool
	booted     atomic.Bool

	mu sync.Mutex
	// staged holds deferred providers loaded before Boot, with the scope
	// they were registered into.
	staged []stagedProvider
}

type stagedProvider struct {
	provider ServiceProvider
	scope    *Container
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		registered: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register() method, unless the
// provider is deferred.
//
//	// Laravel: $app->register(new AppServiceProvider($app))
func (r *ProviderRegistry) Register(provider ServiceProvider) {
	if r.registered[provider] {
		return
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		r.registerDeferred(provider)
		return
	}

	provider.Register(r.app)
	r.eager = append(r.eager, provider)

	if r.booted.Load() {
		provider.Boot(r.app)
	}
}

// registerDeferred puts a placeholder into app for every key the provider
// declares. The first resolution of any of them registers the provider into
// a private child scope of app, once. Each placeholder then delegates to the
// staged factory on every resolution, so the staged lifetime decides whether
// a value is shared or built anew.
//
// The staging scope keeps deferred loading working after app is locked.
func (r *ProviderRegistry) registerDeferred(provider ServiceProvider) {
	load := sync.OnceValue(func() *Container {
		staging := r.app.Scope()
		provider.Register(staging)
		staging.Lock()

		r.mu.Lock()
		booted := r.booted.Load()
		if !booted {
			r.staged = append(r.staged, stagedProvider{provider: provider, scope: staging})
		}
		r.mu.Unlock()
		if booted {
			provider.Boot(staging)
		}

		if ce := r.app.log().Check(zap.DebugLevel, "deferred provider loaded"); ce != nil {
			ce.Write(zap.String("provider", fmt.Sprintf("%T", provider)), zap.Int("services", staging.Len()))
		}
		return staging
	})

	for _, key := range provider.Provides() {
		r.app.Register(registry.NewTransientFor(key, func() (any, error) {
			f, ok := load().reg.Lookup(key)
			if !ok {
				return nil, fmt.Errorf("%T declares %v but did not register it: %w", provider, key, registry.NewNotFoundError(key))
			}
			return f.Resolve()
		}))
	}
}

// Boot calls Boot() on all eager providers and on deferred providers that
// were already loaded.
//
//	// Laravel: $app->boot()
func (r *ProviderRegistry) Boot() {
	r.mu.Lock()
	if r.booted.Swap(true) {
		r.mu.Unlock()
		return
	}
	staged := r.staged
	r.staged = nil
	r.mu.Unlock()

	for _, provider := range r.eager {
		provider.Boot(r.app)
	}
	for _, s := range staged {
		s.provider.Boot(s.scope)
	}
}

// Booted returns true if Boot() has been called.
func (r *ProviderRegistry) Booted() bool { return r.booted.Load() }

// Providers returns all registered eager providers.
func (r *ProviderRegistry) Providers() []ServiceProvider { return r.eager }
