package store

import (
	"context"
	"iter"

	"github.com/robert-malhotra/querykit/criteria"
	"github.com/robert-malhotra/querykit/engine"
)

// Projected materializers transform each row of S into the target shape D
// through the store's mapper registry. The mapper is resolved before any
// query executes, so a missing registration fails fast with
// ErrMapperNotRegistered. Shape dispatch happens at compile time through
// the type parameters; no runtime type inspection is involved.

// ExistsAs reports whether any row matches, validating that a mapper for
// the target shape is registered.
func ExistsAs[S, D any](ctx context.Context, s *Store[S], c criteria.Criteria[S]) (bool, error) {
	if _, err := mapperFor[S, D](s.mappers); err != nil {
		return false, err
	}
	return s.Exists(ctx, c)
}

// CountAs counts matching rows, validating that a mapper for the target
// shape is registered.
func CountAs[S, D any](ctx context.Context, s *Store[S], c criteria.Criteria[S]) (int64, error) {
	if _, err := mapperFor[S, D](s.mappers); err != nil {
		return 0, err
	}
	return s.Count(ctx, c)
}

// FirstAs returns the first matching row projected into D, or ErrNotFound.
func FirstAs[S, D any](ctx context.Context, s *Store[S], c criteria.Criteria[S]) (D, error) {
	var zero D
	mapper, err := mapperFor[S, D](s.mappers)
	if err != nil {
		return zero, err
	}
	row, err := s.First(ctx, c)
	if err != nil {
		return zero, err
	}
	return mapper(row), nil
}

// FirstOrDefaultAs returns the first matching row projected into D, or
// the zero value with found=false when nothing matches.
func FirstOrDefaultAs[S, D any](ctx context.Context, s *Store[S], c criteria.Criteria[S]) (D, bool, error) {
	var zero D
	mapper, err := mapperFor[S, D](s.mappers)
	if err != nil {
		return zero, false, err
	}
	row, found, err := s.FirstOrDefault(ctx, c)
	if err != nil || !found {
		return zero, false, err
	}
	return mapper(row), true, nil
}

// ListAs materializes every matching row projected into D.
func ListAs[S, D any](ctx context.Context, s *Store[S], c criteria.Criteria[S]) ([]D, error) {
	mapper, err := mapperFor[S, D](s.mappers)
	if err != nil {
		return nil, err
	}
	rows, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]D, len(rows))
	for i, row := range rows {
		out[i] = mapper(row)
	}
	return out, nil
}

// PagedListAs materializes one page projected into D, preserving the page
// metadata of the source window.
func PagedListAs[S, D any](ctx context.Context, s *Store[S], c criteria.Criteria[S], page, size int) (*engine.PagedWindow[D], error) {
	mapper, err := mapperFor[S, D](s.mappers)
	if err != nil {
		return nil, err
	}
	window, err := s.PagedList(ctx, c, page, size)
	if err != nil {
		return nil, err
	}
	items := make([]D, len(window.Items))
	for i, row := range window.Items {
		items[i] = mapper(row)
	}
	return engine.NewPagedWindow(items, window.Page, window.Size, window.TotalCount), nil
}

// LazySequenceAs streams matching rows projected into D.
func LazySequenceAs[S, D any](ctx context.Context, s *Store[S], c criteria.Criteria[S]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		var zero D
		mapper, err := mapperFor[S, D](s.mappers)
		if err != nil {
			yield(zero, err)
			return
		}
		for row, err := range s.LazySequence(ctx, c) {
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(mapper(row), nil) {
				return
			}
		}
	}
}
