// Package container provides a type-keyed, hierarchical service container
// and a Laravel-style Service Provider system for Go.
//
// # Overview
//
// Services are stored by their Go type. Each Container is one scope; child
// scopes see every service of their ancestors and may shadow any of them.
// Three lifetimes are supported:
//
//	container.Singleton(app, cfg)                           // pre-built value
//	container.Lazy(app, func() *DB { return openDB(cfg) })  // built once, on first use
//	container.Transient(app, func() *Report { return &Report{} }) // built on every use
//
// Resolution is generic:
//
//	db, err := container.Get[*DB](app)
//	db := container.MustGet[*DB](app)   // panics when missing
//	if container.Contains[*DB](app) { ... }
//
// # Container Lifecycle
//
//  1. Create: app := container.New(container.WithLogger(log))
//  2. Register providers: providers.Register(&MyProvider{})
//  3. Boot: providers.Boot()     safe to resolve everything after this
//  4. Lock: app.Lock()           further registration panics with ErrLocked
//  5. Serve requests from child scopes
//
// # Scopes
//
//	req := app.Scope()
//	container.Singleton(req, &RequestInfo{ID: id})
//	cfg := container.MustGet[*Config](req) // inherited from app
//
// Scopes for short-lived work, such as HTTP requests, come from a ScopePool:
//
//	pool := container.NewScopePool(app, 64)
//	s := pool.Acquire()
//	defer s.Release()
//
// # Frozen snapshots
//
// Freeze locks a container and returns a read-only perfect-hash snapshot of
// its scope chain. It satisfies Resolver, so Get works on it unchanged:
//
//	fz, err := app.Freeze()
//	cfg := container.MustGet[*Config](fz)
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    container.Lazy(app, func() *Mailer {
//	        return mail.NewSMTP(container.MustGet[*config.Config](app).Mail)
//	    })
//	}
//
//	providers := container.NewProviderRegistry(app)
//	providers.Register(&AppServiceProvider{})
//	providers.Boot()
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool { return true }
//	func (p *HeavyProvider) Provides() []container.Key {
//	    return []container.Key{container.KeyFor[*Heavy]()}
//	}
//	func (p *HeavyProvider) Register(app *container.Container) {
//	    container.Lazy(app, heavySetup) // only runs on first Get[*Heavy]
//	}
package container
