package container

import (
	"sync"

	"github.com/km-arc/go-container/framework/container/registry"
)

// hotSlots is the number of entries per cache. It must be a power of two.
const hotSlots = 4

// hotEntry memoizes one resolution made through reg. It is valid only while
// reg's generation and the ancestor epoch are unchanged and every weakly held
// ancestor of reg is still alive.
type hotEntry struct {
	key   Key
	reg   *registry.Registry
	gen   uint64
	epoch uint64
	value any
}

// hotCache is a tiny direct-mapped cache. A cache is owned by whoever took it
// from hotCaches until it is put back, so it needs no locking.
type hotCache struct {
	slots [hotSlots]hotEntry
}

// hotCaches hands out caches with per-P locality.
var hotCaches = sync.Pool{
	New: func() any { return new(hotCache) },
}

func hotSlot(key Key, reg *registry.Registry) int {
	return int(registry.Mix(key.ID(), reg.ID()) & (hotSlots - 1))
}

func (hc *hotCache) get(key Key, reg *registry.Registry, gen, epoch uint64) (any, bool) {
	e := &hc.slots[hotSlot(key, reg)]
	if e.reg == reg && e.key == key && e.gen == gen && e.epoch == epoch && reg.ChainAlive() {
		return e.value, true
	}
	return nil, false
}

func (hc *hotCache) put(key Key, reg *registry.Registry, gen, epoch uint64, v any) {
	hc.slots[hotSlot(key, reg)] = hotEntry{key: key, reg: reg, gen: gen, epoch: epoch, value: v}
}

func (hc *hotCache) reset() {
	clear(hc.slots[:])
}

// InvalidateHotCaches makes every cached resolution in the process stale.
func InvalidateHotCaches() {
	registry.BumpEpoch()
}

// ClearCache drops cached resolutions. Mutations invalidate the cache on
// their own; this is for callers that want the next lookup to go to the
// registry regardless.
func (c *Container) ClearCache() {
	hc := hotCaches.Get().(*hotCache)
	hc.reset()
	hotCaches.Put(hc)
	InvalidateHotCaches()
}
