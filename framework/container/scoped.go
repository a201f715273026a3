package container

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// ScopeID uniquely identifies a container scope within the process.
type ScopeID uint64

var nextScopeID atomic.Uint64

func newScopeID() ScopeID { return ScopeID(nextScopeID.Add(1)) }

func (id ScopeID) String() string {
	return "scope-" + strconv.FormatUint(uint64(id), 10)
}

// ── ScopeBuilder ──────────────────────────────────────────────────────────────

// ScopeBuilder is a reusable list of registration steps applied to scopes.
// Build it once at startup and apply it to every child scope that needs the
// same request-local services.
//
//	reqScope := container.NewScopeBuilder().
//	    With(func(c *container.Container) {
//	        container.Lazy(c, func() *Session { return NewSession() })
//	    })
//
//	child := reqScope.Build(app)
//
// A ScopeBuilder is safe for concurrent use. A step added while scopes are
// being built applies to scopes built after With returns.
type ScopeBuilder struct {
	mu    sync.RWMutex
	steps []func(*Container)
}

// NewScopeBuilder returns an empty builder.
func NewScopeBuilder() *ScopeBuilder {
	return &ScopeBuilder{}
}

// With appends a registration step.
func (b *ScopeBuilder) With(step func(*Container)) *ScopeBuilder {
	if step != nil {
		b.mu.Lock()
		b.steps = append(b.steps, step)
		b.mu.Unlock()
	}
	return b
}

// Len returns the number of steps.
func (b *ScopeBuilder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.steps)
}

// Apply runs every step against c, in order. Steps run without the
// builder's lock held, so a step may add further steps.
func (b *ScopeBuilder) Apply(c *Container) {
	b.mu.RLock()
	steps := b.steps[:len(b.steps):len(b.steps)]
	b.mu.RUnlock()

	for _, step := range steps {
		step(c)
	}
}

// Build creates a child scope of parent and applies the steps to it.
func (b *ScopeBuilder) Build(parent *Container) *Container {
	child := parent.Scope()
	b.Apply(child)
	return child
}
