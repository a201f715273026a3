package container

import "github.com/km-arc/go-container/framework/container/registry"

// Errors are defined by the registry package and re-exported here so callers
// only need to import container.
var (
	ErrNotFound       = registry.ErrNotFound
	ErrParentDropped  = registry.ErrParentDropped
	ErrLocked         = registry.ErrLocked
	ErrCreationFailed = registry.ErrCreationFailed
	ErrTypeMismatch   = registry.ErrTypeMismatch
)

type (
	// Key identifies a registered type. See registry.Key.
	Key = registry.Key

	// NotFoundError reports the type that no scope in the chain provides.
	NotFoundError = registry.NotFoundError

	// CreationError wraps the failure of a fallible lazy factory.
	CreationError = registry.CreationError
)

// KeyFor returns the Key for T.
func KeyFor[T any]() Key { return registry.KeyFor[T]() }

// IsNotFound checks if err is a not-found error.
func IsNotFound(err error) bool { return registry.IsNotFound(err) }
