package registry

import (
	"sync"
	"sync/atomic"
)

// onceCell publishes a single value computed by the first successful init.
//
// It has the same shape as sync.Once, but a failed or panicking init leaves
// the cell empty so the next caller runs init again. Callers that arrive while
// init is running block on mu and then observe the published value.
type onceCell struct {
	done  atomic.Bool
	mu    sync.Mutex
	value any
}

func (c *onceCell) get(init func() (any, error)) (any, error) {
	if c.done.Load() {
		return c.value, nil
	}
	return c.getSlow(init)
}

func (c *onceCell) getSlow(init func() (any, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done.Load() {
		return c.value, nil
	}
	v, err := init()
	if err != nil {
		return nil, err
	}
	c.value = v
	c.done.Store(true)
	return v, nil
}

// isSet reports whether a value has been published.
func (c *onceCell) isSet() bool {
	return c.done.Load()
}
