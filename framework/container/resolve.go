package container

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/container/registry"
)

// Resolver is anything Get can resolve from: a live Container or a Frozen
// snapshot.
type Resolver interface {
	// Resolve returns the value registered for key in the nearest scope that
	// has one, or an error wrapping ErrNotFound.
	Resolve(key Key) (any, error)

	// Has reports whether key is visible. It never creates a service.
	Has(key Key) bool
}

var (
	_ Resolver = (*Container)(nil)
	_ Resolver = (*Frozen)(nil)
)

// ── Typed registration ────────────────────────────────────────────────────────

// Singleton registers a pre-built value.
//
//	// Laravel: $app->instance(Config::class, $config)
//	container.Singleton(app, &Config{URL: "postgres://localhost"})
func Singleton[T any](c *Container, v T) {
	c.Register(registry.NewSingleton(v))
}

// Lazy registers init to build the service on first resolution. init runs
// once even when many goroutines resolve the service at the same time.
//
//	// Laravel: $app->singleton(Cache::class, fn($app) => new RedisCache)
//	container.Lazy(app, func() *Cache { return NewCache() })
func Lazy[T any](c *Container, init func() T) {
	c.Register(registry.NewLazy(init))
}

// TryLazy is Lazy for an init that can fail. A failure is returned to the
// caller as a *CreationError and init runs again on the next resolution.
func TryLazy[T any](c *Container, init func() (T, error)) {
	c.Register(registry.NewTryLazy(init))
}

// Transient registers create to build a new value on every resolution.
//
//	// Laravel: $app->bind(Report::class, fn() => new Report)
//	container.Transient(app, func() *Report { return &Report{} })
func Transient[T any](c *Container, create func() T) {
	c.Register(registry.NewTransient(create))
}

// Forget removes c's own registration of T.
func Forget[T any](c *Container) bool {
	return c.Remove(registry.KeyFor[T]())
}

// ── Typed resolution ──────────────────────────────────────────────────────────

// Get resolves T from r. The error wraps ErrNotFound when no scope in the
// chain has T, ErrCreationFailed when a TryLazy init fails, and
// ErrParentDropped when a weakly held ancestor has been collected.
//
//	db, err := container.Get[*sql.DB](app)
func Get[T any](r Resolver) (T, error) {
	var zero T
	v, err := r.Resolve(registry.KeyFor[T]())
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: stored %T, want %v", ErrTypeMismatch, v, reflect.TypeFor[T]())
	}
	return t, nil
}

// MustGet is Get that panics on error. Use it where a missing service is a
// programming error, such as inside provider Boot methods.
//
//	// Laravel: $app->make(Config::class)
//	cfg := container.MustGet[*config.Config](app)
func MustGet[T any](r Resolver) T {
	v, err := Get[T](r)
	if err != nil {
		panic(fmt.Errorf("container: %w", err))
	}
	return v
}

// TryGet resolves T and reports whether it succeeded.
func TryGet[T any](r Resolver) (T, bool) {
	v, err := Get[T](r)
	return v, err == nil
}

// Contains reports whether T is visible from r.
//
//	// Laravel: $app->bound(Cache::class)
func Contains[T any](r Resolver) bool {
	return r.Has(registry.KeyFor[T]())
}

// WarmCache resolves T so that the next lookups from the current P are served
// by the hot cache.
func WarmCache[T any](c *Container) error {
	_, err := Get[T](c)
	return err
}

// ── Untyped resolution ────────────────────────────────────────────────────────

// Resolve returns the value registered for key in c or its nearest ancestor.
//
// Lookups are first served from a small per-P cache keyed by the scope's
// registry. Entries are stamped with the registry's generation and the
// ancestor epoch read before the lookup, so any later mutation of c or of an
// ancestor makes them miss. Transient services are never cached.
func (c *Container) Resolve(key Key) (any, error) {
	if !c.set.hotCache {
		v, _, err := c.resolveChain(key)
		return v, err
	}

	gen, epoch := c.reg.Generation(), registry.Epoch()

	hc := hotCaches.Get().(*hotCache)
	v, ok := hc.get(key, c.reg, gen, epoch)
	hotCaches.Put(hc)
	if ok {
		return v, nil
	}

	// The factory runs without a cache held, so it may resolve other services.
	v, cacheable, err := c.resolveChain(key)
	if err != nil {
		return nil, err
	}
	if cacheable {
		hc = hotCaches.Get().(*hotCache)
		hc.put(key, c.reg, gen, epoch, v)
		hotCaches.Put(hc)
	}
	return v, nil
}

func (c *Container) resolveChain(key Key) (any, bool, error) {
	f, err := c.lookup(key)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %v from %v: %w", key, c.id, err)
	}
	if f == nil {
		if ce := c.log().Check(zap.DebugLevel, "service not found"); ce != nil {
			ce.Write(zap.Stringer("service", key), zap.Stringer("scope", c.id), zap.Int("depth", c.depth))
		}
		return nil, false, registry.NewNotFoundError(key)
	}

	v, err := f.Resolve()
	if err != nil {
		return nil, false, err
	}
	return v, !f.IsTransient(), nil
}

// Has reports whether key is registered in c or an ancestor. A collected weak
// ancestor counts as absent.
func (c *Container) Has(key Key) bool {
	f, err := c.lookup(key)
	return f != nil && err == nil
}

// lookup finds the nearest factory for key. Scopes are walked nearest first;
// the first frozen scope reached answers from its snapshot, which already
// covers its ancestors. Weakly linked scopes fall back to the registry chain.
func (c *Container) lookup(key Key) (*registry.Factory, error) {
	for cur := c; ; cur = cur.parent {
		if fz := cur.snap.Load(); fz != nil {
			f, _ := fz.LookupInChain(key)
			return f, nil
		}
		if cur.parent == nil {
			f, _, err := cur.reg.LookupInChain(key)
			return f, err
		}
		if f, ok := cur.reg.Lookup(key); ok {
			return f, nil
		}
	}
}

// ── Frozen ────────────────────────────────────────────────────────────────────

// Frozen is a read-only snapshot of a container and its ancestors, produced
// by Container.Freeze. It is safe for concurrent use and never locks.
type Frozen struct {
	snap  *registry.Frozen
	id    ScopeID
	depth int
}

// Resolve returns the value for key from the snapshot chain.
func (f *Frozen) Resolve(key Key) (any, error) {
	fac, ok := f.snap.LookupInChain(key)
	if !ok {
		return nil, registry.NewNotFoundError(key)
	}
	return fac.Resolve()
}

// Has reports whether key is in the snapshot chain.
func (f *Frozen) Has(key Key) bool { return f.snap.ContainsInChain(key) }

// ID returns the identifier of the scope the snapshot was taken from.
func (f *Frozen) ID() ScopeID { return f.id }

// Depth returns the depth of the scope the snapshot was taken from.
func (f *Frozen) Depth() int { return f.depth }

// Len returns the number of services the frozen scope itself holds.
func (f *Frozen) Len() int { return f.snap.Len() }

// Snapshot exposes the underlying perfect-hash registry.
func (f *Frozen) Snapshot() *registry.Frozen { return f.snap }
