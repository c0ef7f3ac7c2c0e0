package store

import (
	"fmt"

	"github.com/robert-malhotra/querykit/engine"
)

// Logger represents the minimal logging interface used by a Store.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Option configures a Store during construction.
type Option[T any] func(*Store[T]) error

// WithMappers attaches a mapper registry used by the projected
// materializers.
func WithMappers[T any](reg *MapperRegistry) Option[T] {
	return func(s *Store[T]) error {
		if reg == nil {
			return fmt.Errorf("%w: nil mapper registry", engine.ErrConfiguration)
		}
		s.mappers = reg
		return nil
	}
}

// WithLogger registers a logger for materializer lifecycle events.
func WithLogger[T any](logger Logger) Option[T] {
	return func(s *Store[T]) error {
		s.logger = logger
		return nil
	}
}

// WithBatchSize sets the fetch batch size used by LazySequence.
func WithBatchSize[T any](size int) Option[T] {
	return func(s *Store[T]) error {
		if size <= 0 {
			return fmt.Errorf("%w: batch size must be positive, got %d", engine.ErrConfiguration, size)
		}
		s.batchSize = size
		return nil
	}
}
