package registry

import (
	"errors"
	"fmt"
	"slices"
)

// ErrFreezeFailed is returned when no perfect hash could be found for a key
// set. With the retry budget below this does not happen in practice.
var ErrFreezeFailed = errors.New("registry: could not build perfect hash")

const (
	freezeSeedAttempts = 32
	freezeMaxDisplace  = 1 << 16
)

// Frozen is an immutable snapshot of a registry chain. Its entries are laid
// out by a minimal perfect hash over the snapshot's keys, so a lookup is one
// bucket read, one slot read and a key comparison.
//
// A Frozen shares factories with the registry it was built from: a lazy
// service created through either one is seen by both. Later changes to the
// live registry are not reflected.
type Frozen struct {
	keys      []Key
	factories []*Factory
	disp      []uint32
	seed      uint64
	parent    *Frozen
}

// Freeze snapshots r and its ancestors. It fails with ErrParentDropped when
// a weak ancestor has already been collected.
func Freeze(r *Registry) (*Frozen, error) {
	return freeze(r, make(map[*Registry]*Frozen))
}

func freeze(r *Registry, seen map[*Registry]*Frozen) (*Frozen, error) {
	if fz, ok := seen[r]; ok {
		return fz, nil
	}

	var parent *Frozen
	p, err := r.Parent()
	if err != nil {
		return nil, err
	}
	if p != nil {
		if parent, err = freeze(p, seen); err != nil {
			return nil, err
		}
	}

	fz, err := buildFrozen(r.Factories())
	if err != nil {
		return nil, err
	}
	fz.parent = parent
	seen[r] = fz
	return fz, nil
}

// buildFrozen lays out factories with hash-and-displace: keys are grouped
// into buckets by a first hash, then each bucket, largest first, searches for
// a displacement that sends all its keys to free slots.
func buildFrozen(fs []*Factory) (*Frozen, error) {
	n := len(fs)
	if n == 0 {
		return &Frozen{}, nil
	}
	m := (n + 1) / 2

	for attempt := 0; attempt < freezeSeedAttempts; attempt++ {
		seed := mix64(uint64(attempt) + 0x9e3779b97f4a7c15)

		buckets := make([][]int, m)
		for i, f := range fs {
			b := bucketFor(f.key.id, seed, m)
			buckets[b] = append(buckets[b], i)
		}
		order := make([]int, m)
		for i := range order {
			order[i] = i
		}
		slices.SortFunc(order, func(a, b int) int {
			return len(buckets[b]) - len(buckets[a])
		})

		disp := make([]uint32, m)
		slotOf := make([]int, n)
		occupied := make([]bool, n)
		if placeBuckets(fs, buckets, order, seed, disp, slotOf, occupied) {
			fz := &Frozen{
				keys:      make([]Key, n),
				factories: make([]*Factory, n),
				disp:      disp,
				seed:      seed,
			}
			for i, f := range fs {
				fz.keys[slotOf[i]] = f.key
				fz.factories[slotOf[i]] = f
			}
			return fz, nil
		}
	}
	return nil, fmt.Errorf("%w: %d keys", ErrFreezeFailed, n)
}

func placeBuckets(fs []*Factory, buckets [][]int, order []int, seed uint64, disp []uint32, slotOf []int, occupied []bool) bool {
	n := len(fs)
	var positions []int

	for _, b := range order {
		items := buckets[b]
		if len(items) == 0 {
			break
		}

		placed := false
		for d := uint32(0); d < freezeMaxDisplace && !placed; d++ {
			positions = positions[:0]
			ok := true
			for _, i := range items {
				pos := slotFor(fs[i].key.id, seed, d, n)
				if occupied[pos] || slices.Contains(positions, pos) {
					ok = false
					break
				}
				positions = append(positions, pos)
			}
			if !ok {
				continue
			}
			for j, i := range items {
				occupied[positions[j]] = true
				slotOf[i] = positions[j]
			}
			disp[b] = d
			placed = true
		}
		if !placed {
			return false
		}
	}
	return true
}

func bucketFor(id, seed uint64, m int) int {
	return int(Mix(id, seed) % uint64(m))
}

func slotFor(id, seed uint64, d uint32, n int) int {
	return int(Mix(id^seed, uint64(d)+1) % uint64(n))
}

// ── Lookups ──────────────────────────────────────────────────────────────────

// Lookup returns the factory for key from this snapshot only.
func (fz *Frozen) Lookup(key Key) (*Factory, bool) {
	n := len(fz.keys)
	if n == 0 {
		return nil, false
	}
	b := bucketFor(key.id, fz.seed, len(fz.disp))
	s := slotFor(key.id, fz.seed, fz.disp[b], n)
	// The hash maps unknown keys to some slot too.
	if fz.keys[s] != key {
		return nil, false
	}
	return fz.factories[s], true
}

// Contains reports whether key is in this snapshot.
func (fz *Frozen) Contains(key Key) bool {
	_, ok := fz.Lookup(key)
	return ok
}

// Resolve runs the factory for key from this snapshot only.
func (fz *Frozen) Resolve(key Key) (any, bool, error) {
	f, ok := fz.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	v, err := f.Resolve()
	return v, true, err
}

// LookupInChain finds the nearest factory for key in this snapshot or its
// frozen ancestors.
func (fz *Frozen) LookupInChain(key Key) (*Factory, bool) {
	for cur := fz; cur != nil; cur = cur.parent {
		if f, ok := cur.Lookup(key); ok {
			return f, true
		}
	}
	return nil, false
}

// ContainsInChain reports whether key is visible from this snapshot.
func (fz *Frozen) ContainsInChain(key Key) bool {
	_, ok := fz.LookupInChain(key)
	return ok
}

// ResolveFromChain resolves key from the nearest snapshot that has it.
func (fz *Frozen) ResolveFromChain(key Key) (any, bool, error) {
	f, ok := fz.LookupInChain(key)
	if !ok {
		return nil, false, nil
	}
	v, err := f.Resolve()
	return v, true, err
}

// Len returns the number of entries in this snapshot.
func (fz *Frozen) Len() int { return len(fz.keys) }

// Keys returns this snapshot's keys in slot order.
func (fz *Frozen) Keys() []Key { return slices.Clone(fz.keys) }

// Parent returns the frozen parent, or nil.
func (fz *Frozen) Parent() *Frozen { return fz.parent }
