package container

import (
	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/container/registry"
)

// Batch collects factories for a single registration pass.
type Batch struct {
	factories []*registry.Factory
}

// Add queues f. Build factories with registry.NewSingleton, NewLazy,
// NewTryLazy or NewTransient.
func (b *Batch) Add(f *registry.Factory) *Batch {
	if f == nil {
		panic("container: Batch.Add(nil)")
	}
	b.factories = append(b.factories, f)
	return b
}

// Len returns the number of queued factories.
func (b *Batch) Len() int { return len(b.factories) }

// Batch registers every factory added by fn. The lock is checked once, before
// fn runs; nothing is inserted if fn panics.
//
//	c.Batch(func(b *container.Batch) {
//	    b.Add(registry.NewSingleton(cfg)).
//	        Add(registry.NewLazy(newDB)).
//	        Add(registry.NewTransient(newRequestID))
//	})
func (c *Container) Batch(fn func(*Batch)) {
	c.mustBeUnlocked("register", "batch")

	var b Batch
	fn(&b)
	for _, f := range b.factories {
		c.reg.Insert(f)
	}

	if ce := c.log().Check(zap.DebugLevel, "batch registered"); ce != nil {
		ce.Write(zap.Stringer("scope", c.id), zap.Int("services", len(b.factories)))
	}
}
