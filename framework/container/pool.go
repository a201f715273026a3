package container

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/container/registry"
)

// DefaultPoolSize is the number of scopes a pool keeps when no size is given.
const DefaultPoolSize = 64

// ScopePool recycles child scopes of one root, so per-request scopes do not
// allocate a new registry each time.
//
//	pool := container.NewScopePool(app, 128)
//
//	func handle(w http.ResponseWriter, r *http.Request) {
//	    s := pool.Acquire()
//	    defer s.Release()
//	    container.Singleton(s.Container, &RequestInfo{Path: r.URL.Path})
//	    ...
//	}
type ScopePool struct {
	root *Container
	size int

	mu   sync.Mutex
	free []*pooledSlot
}

type pooledSlot struct {
	reg    *registry.Registry
	locked *atomic.Bool
}

// PooledScope is a scope borrowed from a ScopePool. It must not be used after
// Release.
type PooledScope struct {
	*Container
	pool     *ScopePool
	slot     *pooledSlot
	released atomic.Bool
}

// NewScopePool creates a pool of child scopes of root, pre-building size of
// them. A size of zero or less uses DefaultPoolSize.
func NewScopePool(root *Container, size int) *ScopePool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &ScopePool{
		root: root,
		size: size,
		free: make([]*pooledSlot, 0, size),
	}
	for i := 0; i < size; i++ {
		p.free = append(p.free, p.newSlot())
	}

	if ce := root.log().Check(zap.DebugLevel, "scope pool created"); ce != nil {
		ce.Write(zap.Stringer("scope", root.id), zap.Int("size", size))
	}
	return p
}

func (p *ScopePool) newSlot() *pooledSlot {
	return &pooledSlot{reg: p.root.childRegistry(), locked: new(atomic.Bool)}
}

// Acquire returns an empty, unlocked child scope of the pool's root. When the
// pool is exhausted a fresh scope is built.
func (p *ScopePool) Acquire() *PooledScope {
	p.mu.Lock()
	var slot *pooledSlot
	if n := len(p.free); n > 0 {
		slot = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if slot == nil {
		slot = p.newSlot()
	}

	return &PooledScope{
		Container: newContainer(slot.reg, slot.locked, p.root, p.root.set),
		pool:      p,
		slot:      slot,
	}
}

// With runs fn with a borrowed scope and releases it afterwards, also when fn
// panics.
func (p *ScopePool) With(fn func(*Container) error) error {
	s := p.Acquire()
	defer s.Release()
	return fn(s.Container)
}

// Available returns the number of idle scopes.
func (p *ScopePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the maximum number of idle scopes the pool keeps.
func (p *ScopePool) Size() int { return p.size }

// Root returns the container the pooled scopes inherit from.
func (p *ScopePool) Root() *Container { return p.root }

// Release clears the scope's registrations and lock and returns it to the
// pool. Calling Release more than once has no effect.
func (s *PooledScope) Release() {
	if s.released.Swap(true) {
		return
	}
	s.slot.reg.Clear()
	s.slot.locked.Store(false)

	p := s.pool
	p.mu.Lock()
	if len(p.free) < p.size {
		p.free = append(p.free, s.slot)
	}
	p.mu.Unlock()
}
