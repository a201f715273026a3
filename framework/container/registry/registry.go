// Package registry provides the concurrent, type-keyed storage behind the
// container: factories, sharded registries linked into a parent chain, and
// read-only perfect-hash snapshots of them.
package registry

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"weak"
)

// DefaultShards is the shard count of a registry created without options.
// Typical containers hold tens of services, so a handful of shards keeps
// creation cheap while still spreading unrelated keys.
const DefaultShards = 8

// epoch changes whenever a registry that has descendants is mutated. Caches
// that memoize values resolved through a parent chain compare it to detect
// changes made anywhere above the registry they are keyed by.
var epoch atomic.Uint64

var nextRegistryID atomic.Uint64

// Epoch returns the current ancestor epoch.
func Epoch() uint64 { return epoch.Load() }

// BumpEpoch invalidates everything stamped with the current epoch.
func BumpEpoch() { epoch.Add(1) }

// Registry maps keys to factories. It is safe for concurrent use; keys are
// spread over independently locked shards.
//
// A registry may have a parent. Lookups that walk the chain check the
// registry itself first and then each ancestor, nearest first, so local
// entries shadow inherited ones.
type Registry struct {
	id     uint64
	shards []shard
	mask   uint64
	count  atomic.Int64

	parent     *Registry
	weakParent weak.Pointer[Registry]
	linked     bool
	weak       bool
	// weakChain is set when any link from r up to the root is weak.
	weakChain bool

	// gen changes on every mutation of this registry.
	gen atomic.Uint64
	// descendants is set once a child has been linked to this registry.
	descendants atomic.Bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[Key]*Factory
}

// Option configures a Registry at construction.
type Option func(*options)

type options struct {
	shards int
	parent *Registry
	weak   bool
}

// WithShards sets the shard count, rounded up to a power of two.
func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

// WithCapacity sizes the shard count for roughly capacity services.
func WithCapacity(capacity int) Option {
	return func(o *options) { o.shards = shardsForCapacity(capacity) }
}

// WithParent links the new registry to parent with a strong reference: the
// parent stays alive as long as the child does.
func WithParent(parent *Registry) Option {
	return func(o *options) {
		o.parent = parent
		o.weak = false
	}
}

// WithWeakParent links the new registry to parent with a weak reference.
// Once the parent is collected, chain lookups fail with ErrParentDropped.
func WithWeakParent(parent *Registry) Option {
	return func(o *options) {
		o.parent = parent
		o.weak = true
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	o := options{shards: DefaultShards}
	for _, opt := range opts {
		opt(&o)
	}

	n := roundShards(o.shards)
	r := &Registry{
		id:     nextRegistryID.Add(1),
		shards: make([]shard, n),
		mask:   uint64(n - 1),
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[Key]*Factory)
	}

	if o.parent != nil {
		r.linked = true
		r.weak = o.weak
		r.weakChain = o.weak || o.parent.weakChain
		if o.weak {
			r.weakParent = weak.Make(o.parent)
		} else {
			r.parent = o.parent
		}
		o.parent.descendants.Store(true)
	}
	return r
}

// Child creates a registry whose parent is r.
func (r *Registry) Child(opts ...Option) *Registry {
	return New(append(opts, WithParent(r))...)
}

// WeakChild creates a registry weakly linked to r.
func (r *Registry) WeakChild(opts ...Option) *Registry {
	return New(append(opts, WithWeakParent(r))...)
}

func shardsForCapacity(capacity int) int {
	switch {
	case capacity <= 16:
		return 8
	case capacity <= 64:
		return 16
	default:
		return 32
	}
}

func roundShards(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func (r *Registry) shardFor(key Key) *shard {
	return &r.shards[key.Hash()&r.mask]
}

// touch records a mutation.
func (r *Registry) touch() {
	r.gen.Add(1)
	if r.descendants.Load() {
		epoch.Add(1)
	}
}

// ── Local operations ─────────────────────────────────────────────────────────

// Insert stores f under its own key, replacing any previous factory.
func (r *Registry) Insert(f *Factory) {
	if f == nil {
		panic("registry: Insert(nil)")
	}
	r.InsertKey(f.key, f)
}

// InsertKey stores f under key, replacing any previous factory. key must be
// the factory's key.
func (r *Registry) InsertKey(key Key, f *Factory) {
	if f == nil {
		panic("registry: InsertKey with nil factory")
	}
	if key != f.key {
		panic("registry: factory for " + f.key.String() + " inserted under " + key.String())
	}

	s := r.shardFor(key)
	s.mu.Lock()
	_, existed := s.entries[key]
	s.entries[key] = f
	s.mu.Unlock()

	if !existed {
		r.count.Add(1)
	}
	r.touch()
}

// Lookup returns the local factory for key.
func (r *Registry) Lookup(key Key) (*Factory, bool) {
	s := r.shardFor(key)
	s.mu.RLock()
	f, ok := s.entries[key]
	s.mu.RUnlock()
	return f, ok
}

// Contains reports whether key is registered locally.
func (r *Registry) Contains(key Key) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Resolve runs the local factory for key. The factory runs outside the shard
// lock, so it may itself resolve from this registry.
func (r *Registry) Resolve(key Key) (any, bool, error) {
	f, ok := r.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	v, err := f.Resolve()
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}

// IsTransient reports whether the local factory for key is transient.
func (r *Registry) IsTransient(key Key) bool {
	f, ok := r.Lookup(key)
	return ok && f.IsTransient()
}

// Remove deletes the local factory for key.
func (r *Registry) Remove(key Key) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	_, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if ok {
		r.count.Add(-1)
		r.touch()
	}
	return ok
}

// Clear removes every local factory. The parent link is kept.
func (r *Registry) Clear() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n := len(s.entries)
		clear(s.entries)
		s.mu.Unlock()
		r.count.Add(int64(-n))
	}
	r.touch()
}

// Len returns the number of local factories.
func (r *Registry) Len() int { return int(r.count.Load()) }

// IsEmpty reports whether the registry has no local factories.
func (r *Registry) IsEmpty() bool { return r.Len() == 0 }

// Keys returns a snapshot of the local keys in no particular order.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, r.Len())
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	return keys
}

// Factories returns a snapshot of the local factories in no particular order.
func (r *Registry) Factories() []*Factory {
	out := make([]*Factory, 0, r.Len())
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, f := range s.entries {
			out = append(out, f)
		}
		s.mu.RUnlock()
	}
	return out
}

// ID returns a process-unique identifier for the registry.
func (r *Registry) ID() uint64 { return r.id }

// Generation returns a counter that changes on every mutation.
func (r *Registry) Generation() uint64 { return r.gen.Load() }

// Shards returns the shard count.
func (r *Registry) Shards() int { return len(r.shards) }

// ── Parent chain ─────────────────────────────────────────────────────────────

// HasParent reports whether the registry was created with a parent link.
func (r *Registry) HasParent() bool { return r.linked }

// IsWeak reports whether the parent link is weak.
func (r *Registry) IsWeak() bool { return r.weak }

// HasWeakLink reports whether any link between r and its root is weak.
func (r *Registry) HasWeakLink() bool { return r.weakChain }

// ChainAlive reports whether every ancestor of r is still reachable. It is
// always true for a chain of strong links.
func (r *Registry) ChainAlive() bool {
	if !r.weakChain {
		return true
	}
	for cur := r; cur != nil; {
		next, err := cur.Parent()
		if err != nil {
			return false
		}
		cur = next
	}
	return true
}

// HasDescendants reports whether a child has ever been linked to r.
func (r *Registry) HasDescendants() bool { return r.descendants.Load() }

// Parent returns the parent registry, nil for a root, or ErrParentDropped
// when a weak parent has been collected.
func (r *Registry) Parent() (*Registry, error) {
	if !r.linked {
		return nil, nil
	}
	if !r.weak {
		return r.parent, nil
	}
	if p := r.weakParent.Value(); p != nil {
		return p, nil
	}
	return nil, ErrParentDropped
}

// LookupInChain finds the nearest factory for key, starting at r. It also
// returns the registry that owns the factory. A miss returns a nil factory
// and a nil error.
func (r *Registry) LookupInChain(key Key) (*Factory, *Registry, error) {
	for cur := r; cur != nil; {
		if f, ok := cur.Lookup(key); ok {
			return f, cur, nil
		}
		next, err := cur.Parent()
		if err != nil {
			return nil, nil, err
		}
		cur = next
	}
	return nil, nil, nil
}

// ContainsInChain reports whether r or any ancestor has key.
func (r *Registry) ContainsInChain(key Key) (bool, error) {
	f, _, err := r.LookupInChain(key)
	return f != nil, err
}

// ResolveFromChain resolves key from the nearest registry that has it.
func (r *Registry) ResolveFromChain(key Key) (any, bool, error) {
	f, _, err := r.LookupInChain(key)
	if err != nil || f == nil {
		return nil, false, err
	}
	v, err := f.Resolve()
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}
