package registry

import (
	"fmt"
	"reflect"
)

// Lifetime selects how a Factory produces its value.
type Lifetime int

const (
	// Singleton holds one value supplied at registration time.
	Singleton Lifetime = iota

	// Lazy creates one value on first resolution and shares it afterwards.
	// Creation happens at most once, even under concurrent first access.
	Lazy

	// Transient creates a new value on every resolution.
	Transient
)

// String returns the human-readable name of the lifetime.
func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Lazy:
		return "lazy"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("Lifetime(%d)", int(l))
	}
}

// Factory is the stored production rule for one key.
type Factory struct {
	key      Key
	lifetime Lifetime

	// instance is set for Singleton.
	instance any

	// create is set for Lazy and Transient.
	create func() (any, error)

	// cell holds the Lazy value once created.
	cell *onceCell
}

// ── Typed constructors ────────────────────────────────────────────────────────

// NewSingleton returns a factory that always yields v.
func NewSingleton[T any](v T) *Factory {
	return &Factory{key: KeyFor[T](), lifetime: Singleton, instance: v}
}

// NewLazy returns a factory that runs init once, on first resolution.
func NewLazy[T any](init func() T) *Factory {
	if init == nil {
		panic("registry: NewLazy with nil init")
	}
	return &Factory{
		key:      KeyFor[T](),
		lifetime: Lazy,
		create:   func() (any, error) { return init(), nil },
		cell:     new(onceCell),
	}
}

// NewTryLazy is NewLazy for an init function that can fail. A failure is not
// remembered: the next resolution runs init again.
func NewTryLazy[T any](init func() (T, error)) *Factory {
	if init == nil {
		panic("registry: NewTryLazy with nil init")
	}
	return &Factory{
		key:      KeyFor[T](),
		lifetime: Lazy,
		create: func() (any, error) {
			v, err := init()
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		cell: new(onceCell),
	}
}

// NewTransient returns a factory that calls create on every resolution.
func NewTransient[T any](create func() T) *Factory {
	if create == nil {
		panic("registry: NewTransient with nil create")
	}
	return &Factory{
		key:      KeyFor[T](),
		lifetime: Transient,
		create:   func() (any, error) { return create(), nil },
	}
}

// ── Untyped constructors ──────────────────────────────────────────────────────

// NewSingletonFor stores v under key. v must be assignable to key's type.
func NewSingletonFor(key Key, v any) *Factory {
	mustAssign(key, v)
	return &Factory{key: key, lifetime: Singleton, instance: v}
}

// NewLazyFor is the untyped form of NewTryLazy. The produced value must be
// assignable to key's type; otherwise resolution fails with ErrTypeMismatch.
func NewLazyFor(key Key, init func() (any, error)) *Factory {
	if init == nil {
		panic("registry: NewLazyFor with nil init")
	}
	return &Factory{
		key:      key,
		lifetime: Lazy,
		create:   checked(key, init),
		cell:     new(onceCell),
	}
}

// NewTransientFor is the untyped form of NewTransient. Each produced value
// must be assignable to key's type.
func NewTransientFor(key Key, create func() (any, error)) *Factory {
	if create == nil {
		panic("registry: NewTransientFor with nil create")
	}
	return &Factory{key: key, lifetime: Transient, create: checked(key, create)}
}

func checked(key Key, create func() (any, error)) func() (any, error) {
	return func() (any, error) {
		v, err := create()
		if err != nil {
			return nil, err
		}
		if !assignable(key, v) {
			return nil, fmt.Errorf("%w: %T is not %v", ErrTypeMismatch, v, key.Type())
		}
		return v, nil
	}
}

func mustAssign(key Key, v any) {
	if !assignable(key, v) {
		panic(fmt.Sprintf("registry: %T is not assignable to %v", v, key.Type()))
	}
}

func assignable(key Key, v any) bool {
	if v == nil {
		switch key.Type().Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	return reflect.TypeOf(v).AssignableTo(key.Type())
}

// ── Accessors ─────────────────────────────────────────────────────────────────

// Key returns the key the factory produces values for.
func (f *Factory) Key() Key { return f.key }

// Lifetime returns the factory's lifetime.
func (f *Factory) Lifetime() Lifetime { return f.lifetime }

// IsTransient reports whether every resolution yields a new value.
func (f *Factory) IsTransient() bool { return f.lifetime == Transient }

// IsCreated reports whether the factory already holds its value. It is always
// true for singletons and always false for transients.
func (f *Factory) IsCreated() bool {
	switch f.lifetime {
	case Singleton:
		return true
	case Lazy:
		return f.cell.isSet()
	default:
		return false
	}
}

// Resolve produces the factory's value. The only possible error is a
// *CreationError from a failing lazy init.
func (f *Factory) Resolve() (any, error) {
	switch f.lifetime {
	case Singleton:
		return f.instance, nil
	case Lazy:
		return f.cell.get(f.run)
	default:
		return f.run()
	}
}

func (f *Factory) run() (any, error) {
	v, err := f.create()
	if err != nil {
		return nil, &CreationError{Type: f.key.Type(), Cause: err}
	}
	return v, nil
}
