package registry

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNotFound is returned when no registry in the visible chain has the
	// requested type.
	ErrNotFound = errors.New("service not found")

	// ErrParentDropped is returned when a weakly linked ancestor registry has
	// already been garbage collected.
	ErrParentDropped = errors.New("parent scope has been dropped")

	// ErrLocked is the panic value (wrapped) raised when registering into a
	// locked container.
	ErrLocked = errors.New("container is locked")

	// ErrCreationFailed is returned when a fallible lazy factory fails.
	ErrCreationFailed = errors.New("service creation failed")

	// ErrTypeMismatch is returned when a stored value cannot be converted to
	// the requested type.
	ErrTypeMismatch = errors.New("service type mismatch")
)

// NotFoundError reports the type that was requested but not registered.
type NotFoundError struct {
	Type reflect.Type
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("service not found: %v", e.Type)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CreationError wraps the failure of a lazy factory.
type CreationError struct {
	Type  reflect.Type
	Cause error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("failed to create service %v: %v", e.Type, e.Cause)
}

func (e *CreationError) Is(target error) bool {
	return target == ErrCreationFailed
}

func (e *CreationError) Unwrap() error { return e.Cause }

// NewNotFoundError creates a NotFoundError for key.
func NewNotFoundError(key Key) error {
	return &NotFoundError{Type: key.Type()}
}

// IsNotFound checks if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsParentDropped checks if err reports a collected weak parent.
func IsParentDropped(err error) bool {
	return errors.Is(err, ErrParentDropped)
}
