package container

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/container/registry"
)

// ── Container ─────────────────────────────────────────────────────────────────

// Container is one scope of the service graph: a handle over a registry, the
// scope's lock flag and its position in the scope tree.
//
// Services are keyed by their Go type. A child scope created with Scope sees
// everything its ancestors register and may shadow any of it with its own
// registration; its own registrations are never visible to the parent.
//
//	app := container.New()
//	container.Singleton(app, &Config{URL: "postgres://prod"})
//
//	test := app.Scope()
//	container.Singleton(test, &Config{URL: "postgres://test"})
//
//	cfg, _ := container.Get[*Config](test) // postgres://test
//
// A *Container is safe for concurrent use. Copying the pointer shares the
// scope; it does not create a new one.
type Container struct {
	reg    *registry.Registry
	locked *atomic.Bool
	depth  int
	id     ScopeID
	set    *settings

	// parent is the enclosing scope; nil for roots and for weakly linked
	// children, which walk the registry chain instead.
	parent *Container
	// snap is set by Freeze. Lookups that reach a frozen scope finish in its
	// snapshot.
	snap atomic.Pointer[registry.Frozen]
}

// New creates an empty root container.
func New(opts ...Option) *Container {
	set := newSettings(opts)

	var regOpts []registry.Option
	if set.shards != nil {
		regOpts = append(regOpts, set.shards)
	}

	c := newContainer(registry.New(regOpts...), new(atomic.Bool), nil, set)
	if ce := c.log().Check(zap.DebugLevel, "container created"); ce != nil {
		ce.Write(zap.Stringer("scope", c.id), zap.Int("shards", c.reg.Shards()))
	}
	return c
}

func newContainer(reg *registry.Registry, locked *atomic.Bool, parent *Container, set *settings) *Container {
	c := &Container{
		reg:    reg,
		locked: locked,
		id:     newScopeID(),
		set:    set,
	}
	if parent != nil {
		c.depth = parent.depth + 1
		if !set.weakParents {
			c.parent = parent
		}
	}
	return c
}

// Scope creates a child scope. The child starts empty and unlocked, inherits
// every service of c through the parent chain, and shares c's logger and
// options.
//
//	// Laravel: $app->scoped(...) per request
//	req := app.Scope()
//	container.Singleton(req, &RequestInfo{ID: id})
func (c *Container) Scope() *Container {
	child := newContainer(c.childRegistry(), new(atomic.Bool), c, c.set)

	if ce := c.log().Check(zap.DebugLevel, "scope created"); ce != nil {
		ce.Write(
			zap.Stringer("scope", child.id),
			zap.Stringer("parent", c.id),
			zap.Int("depth", child.depth),
		)
	}
	return child
}

func (c *Container) childRegistry() *registry.Registry {
	if c.set.weakParents {
		return c.reg.WeakChild()
	}
	return c.reg.Child()
}

// ── Registration ──────────────────────────────────────────────────────────────

// Register stores f in this scope, replacing any earlier registration of the
// same type in this scope. It panics with an error wrapping ErrLocked when the
// scope is locked.
//
// Most code uses the typed helpers Singleton, Lazy, TryLazy and Transient.
func (c *Container) Register(f *registry.Factory) {
	if f == nil {
		panic("container: Register(nil)")
	}
	c.mustBeUnlocked("register", f.Key().String())
	c.reg.Insert(f)

	if ce := c.log().Check(zap.DebugLevel, "service registered"); ce != nil {
		ce.Write(
			zap.Stringer("service", f.Key()),
			zap.Stringer("lifetime", f.Lifetime()),
			zap.Stringer("scope", c.id),
			zap.Int("depth", c.depth),
		)
	}
}

// Remove deletes this scope's registration for key. Ancestors are not
// affected, so an inherited service becomes visible again. It panics when the
// scope is locked.
func (c *Container) Remove(key Key) bool {
	c.mustBeUnlocked("remove", key.String())
	return c.reg.Remove(key)
}

func (c *Container) mustBeUnlocked(verb, what string) {
	if c.locked.Load() {
		panic(fmt.Errorf("%w: cannot %s %s in %v", ErrLocked, verb, what, c.id))
	}
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// Lock forbids further registration in this scope. Resolution keeps working.
// Locking cannot be undone; child scopes are not affected.
//
//	// after all providers have booted
//	app.Lock()
func (c *Container) Lock() {
	if c.locked.Swap(true) {
		return
	}
	if ce := c.log().Check(zap.DebugLevel, "container locked"); ce != nil {
		ce.Write(zap.Stringer("scope", c.id), zap.Int("services", c.reg.Len()))
	}
}

// IsLocked reports whether Lock has been called.
func (c *Container) IsLocked() bool { return c.locked.Load() }

// Clear removes every registration of this scope. Ancestors keep theirs, so
// inherited services stay visible.
func (c *Container) Clear() {
	n := c.reg.Len()
	c.reg.Clear()
	if ce := c.log().Check(zap.DebugLevel, "scope cleared"); ce != nil {
		ce.Write(zap.Stringer("scope", c.id), zap.Int("services", n))
	}
}

// Freeze locks the scope and builds a read-only perfect-hash snapshot of it
// and its ancestors. Use the snapshot with Get like any other Resolver.
//
// From then on c and its strongly linked descendants, pooled scopes
// included, answer every lookup that reaches c from the snapshot instead of
// the live registries. Later registrations in ancestors are not reflected.
func (c *Container) Freeze() (*Frozen, error) {
	c.Lock()
	if fz := c.snap.Load(); fz != nil {
		return &Frozen{snap: fz, id: c.id, depth: c.depth}, nil
	}
	fz, err := registry.Freeze(c.reg)
	if err != nil {
		return nil, fmt.Errorf("freeze %v: %w", c.id, err)
	}
	if !c.snap.CompareAndSwap(nil, fz) {
		fz = c.snap.Load()
	}
	// Cached resolutions made through the live registries must miss now.
	InvalidateHotCaches()
	if ce := c.log().Check(zap.DebugLevel, "container frozen"); ce != nil {
		ce.Write(zap.Stringer("scope", c.id), zap.Int("services", fz.Len()))
	}
	return &Frozen{snap: fz, id: c.id, depth: c.depth}, nil
}

// IsFrozen reports whether Freeze has been called on this scope.
func (c *Container) IsFrozen() bool { return c.snap.Load() != nil }

// ── Introspection ─────────────────────────────────────────────────────────────

// Depth returns 0 for a root container and parent depth + 1 for a scope.
func (c *Container) Depth() int { return c.depth }

// ID returns the scope's identifier.
func (c *Container) ID() ScopeID { return c.id }

// Len returns the number of services registered in this scope itself.
func (c *Container) Len() int { return c.reg.Len() }

// IsEmpty reports whether this scope has no registrations of its own.
func (c *Container) IsEmpty() bool { return c.reg.IsEmpty() }

// RegisteredTypes returns the names of the types registered in this scope
// itself, in no particular order.
func (c *Container) RegisteredTypes() []string {
	keys := c.reg.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// Logger returns the logger the container was configured with.
func (c *Container) Logger() *zap.Logger { return c.set.log }

func (c *Container) log() *zap.Logger { return c.set.log }
