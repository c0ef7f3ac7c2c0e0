// Package store exposes the result materializers that repository-like
// callers use to run a criteria against an execution engine, plus the
// applier translating criteria into engine operations.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/robert-malhotra/querykit/criteria"
	"github.com/robert-malhotra/querykit/engine"
)

const defaultBatchSize = 100

// Store materializes criteria against an execution engine. Each
// materializer call acquires its own scoped session and releases it on
// every exit path, including cancellation and failure. A Store is safe
// for concurrent use.
type Store[T any] struct {
	provider  engine.Provider[T]
	mappers   *MapperRegistry
	logger    Logger
	batchSize int
}

// New constructs a Store over the given engine provider.
func New[T any](provider engine.Provider[T], opts ...Option[T]) (*Store[T], error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil engine provider", engine.ErrConfiguration)
	}
	s := &Store[T]{
		provider:  provider,
		mappers:   NewMapperRegistry(),
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Exists reports whether any row matches the criteria.
func (s *Store[T]) Exists(ctx context.Context, c criteria.Criteria[T]) (bool, error) {
	s.begin("exists", c)
	session, err := s.provider.Acquire(ctx)
	if err != nil {
		return false, s.fail(ctx, "exists", err)
	}
	defer session.Close()

	ok, err := Apply(session.Query(), c).ToExists(ctx)
	if err != nil {
		return false, s.fail(ctx, "exists", err)
	}
	return ok, nil
}

// Count returns the number of rows matching the criteria.
func (s *Store[T]) Count(ctx context.Context, c criteria.Criteria[T]) (int64, error) {
	s.begin("count", c)
	session, err := s.provider.Acquire(ctx)
	if err != nil {
		return 0, s.fail(ctx, "count", err)
	}
	defer session.Close()

	n, err := Apply(session.Query(), c).ToCount(ctx)
	if err != nil {
		return 0, s.fail(ctx, "count", err)
	}
	return n, nil
}

// First returns the first row in applied order, or ErrNotFound when
// nothing matches.
func (s *Store[T]) First(ctx context.Context, c criteria.Criteria[T]) (T, error) {
	var zero T
	s.begin("first", c)
	session, err := s.provider.Acquire(ctx)
	if err != nil {
		return zero, s.fail(ctx, "first", err)
	}
	defer session.Close()

	row, err := Apply(session.Query(), c).ToFirst(ctx)
	if err != nil {
		return zero, s.fail(ctx, "first", err)
	}
	return row, nil
}

// FirstOrDefault returns the first row in applied order, or the zero
// value with found=false when nothing matches.
func (s *Store[T]) FirstOrDefault(ctx context.Context, c criteria.Criteria[T]) (T, bool, error) {
	row, err := s.First(ctx, c)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			var zero T
			return zero, false, nil
		}
		var zero T
		return zero, false, err
	}
	return row, true, nil
}

// List materializes every matching row, eagerly, in applied order.
func (s *Store[T]) List(ctx context.Context, c criteria.Criteria[T]) ([]T, error) {
	s.begin("list", c)
	session, err := s.provider.Acquire(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}
	defer session.Close()

	rows, err := Apply(session.Query(), c).ToList(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}
	return rows, nil
}

// PagedList materializes one page of the result set with page metadata.
// Out-of-range pages return an empty window with correct metadata, not an
// error.
func (s *Store[T]) PagedList(ctx context.Context, c criteria.Criteria[T], page, size int) (*engine.PagedWindow[T], error) {
	s.begin("pagedList", c)
	session, err := s.provider.Acquire(ctx)
	if err != nil {
		return nil, s.fail(ctx, "pagedList", err)
	}
	defer session.Close()

	window, err := Apply(session.Query(), c).ToPagedWindow(ctx, page, size)
	if err != nil {
		return nil, s.fail(ctx, "pagedList", err)
	}
	return window, nil
}

// LazySequence streams matching rows forward-only, fetched in batches of
// the store's configured size. The sequence owns its session: it is
// acquired when iteration starts and released when iteration stops, on
// every exit path. Iteration ends after the first error.
func (s *Store[T]) LazySequence(ctx context.Context, c criteria.Criteria[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		s.begin("lazySequence", c)
		session, err := s.provider.Acquire(ctx)
		if err != nil {
			var zero T
			yield(zero, s.fail(ctx, "lazySequence", err))
			return
		}
		defer session.Close()

		for row, err := range Apply(session.Query(), c).ToLazySequence(ctx, s.batchSize) {
			if err != nil {
				var zero T
				yield(zero, s.fail(ctx, "lazySequence", err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// begin logs the start of a materializer call with a criteria summary.
func (s *Store[T]) begin(op string, c criteria.Criteria[T]) {
	if s.logger == nil {
		return
	}
	s.logger.Debugf("querykit: %s filtered=%v includes=%d order=%d bypass=%v",
		op, !c.Filter().IsZero(), len(c.Includes()),
		len(c.OrderAscending())+len(c.OrderDescending()), c.BypassesGlobalFilters())
}

// fail classifies errors leaving a materializer: caller cancellation is
// surfaced as ErrCancelled, everything else keeps the engine's
// classification.
func (s *Store[T]) fail(ctx context.Context, op string, err error) error {
	if s.logger != nil {
		s.logger.Errorf("querykit: %s failed: %v", op, err)
	}
	if cancelled := engine.Cancelled(ctx); cancelled != nil && !errors.Is(err, engine.ErrCancelled) {
		return fmt.Errorf("%w: %s: %v", engine.ErrCancelled, op, err)
	}
	return err
}
