package registry

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Key identifies one registered type. Keys are interned per reflect.Type, so
// the same type always yields the same Key within a process and two distinct
// types never share one.
type Key struct {
	id  uint64
	typ reflect.Type
}

var (
	keyIDs    sync.Map // reflect.Type → uint64
	nextKeyID atomic.Uint64
)

// KeyOf returns the Key for t.
func KeyOf(t reflect.Type) Key {
	if t == nil {
		panic("registry: KeyOf(nil)")
	}
	if id, ok := keyIDs.Load(t); ok {
		return Key{id: id.(uint64), typ: t}
	}
	id, _ := keyIDs.LoadOrStore(t, nextKeyID.Add(1))
	return Key{id: id.(uint64), typ: t}
}

// KeyFor returns the Key for T. Interface types are keyed as themselves:
//
//	registry.KeyFor[Logger]()   // the Logger interface
//	registry.KeyFor[*Config]()  // the pointer type
func KeyFor[T any]() Key {
	return KeyOf(reflect.TypeFor[T]())
}

// ID returns the interned numeric id of the key.
func (k Key) ID() uint64 { return k.id }

// Type returns the reflect.Type the key was built from.
func (k Key) Type() reflect.Type { return k.typ }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.id == 0 }

// Hash returns a well-mixed 64-bit hash of the key.
func (k Key) Hash() uint64 { return mix64(k.id) }

func (k Key) String() string {
	if k.typ == nil {
		return "<nil>"
	}
	return k.typ.String()
}

// mix64 is the splitmix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Mix combines two 64-bit values into one well-distributed hash.
func Mix(a, b uint64) uint64 {
	return mix64(a ^ mix64(b+0x9e3779b97f4a7c15))
}
