package container

import (
	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/container/registry"
)

// settings are fixed when the root container is created and shared, read
// only, by every scope derived from it.
type settings struct {
	log         *zap.Logger
	hotCache    bool
	weakParents bool
	shards      registry.Option
}

// Option configures a root Container.
type Option func(*settings)

// WithLogger sets the logger used for container events. Scopes inherit it.
// The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithoutHotCache disables the per-P resolution cache for the whole tree.
func WithoutHotCache() Option {
	return func(s *settings) { s.hotCache = false }
}

// WithWeakParents makes child scopes hold their parent weakly. Resolving
// through a parent that has been collected fails with ErrParentDropped.
func WithWeakParents() Option {
	return func(s *settings) { s.weakParents = true }
}

// WithCapacity sizes the root registry for roughly n services.
//
//	c := container.New(container.WithCapacity(200)) // 32 shards
func WithCapacity(n int) Option {
	return func(s *settings) { s.shards = registry.WithCapacity(n) }
}

// WithShards sets the root registry's shard count, rounded up to a power of
// two. Zero or less keeps the default.
func WithShards(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.shards = registry.WithShards(n)
		}
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{log: zap.NewNop(), hotCache: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
