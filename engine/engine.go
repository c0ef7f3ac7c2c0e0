// Package engine defines the abstract queryable execution-engine boundary
// consumed by the criteria applier and the result materializers. Concrete
// engines (in-memory, SQL) live in their own packages.
package engine

import (
	"context"
	"iter"

	"github.com/robert-malhotra/querykit/predicate"
)

// Direction orders a sort key.
type Direction string

const (
	// Ascending orders results ascending.
	Ascending Direction = "asc"
	// Descending orders results descending.
	Descending Direction = "desc"
)

// Queryable is one composable query surface over rows of T. Builder calls
// return a derived surface and never execute anything; selector problems
// surface at the terminal operation, never as a silent no-op.
type Queryable[T any] interface {
	// Where restricts the surface to rows matching the predicate.
	Where(p predicate.Lambda) Queryable[T]
	// Include marks a related object graph for eager loading.
	Include(path string) Queryable[T]
	// OrderBy establishes the primary sort key.
	OrderBy(path string, dir Direction) Queryable[T]
	// ThenBy chains a secondary sort key.
	ThenBy(path string, dir Direction) Queryable[T]
	// IgnoreGlobalFilters bypasses the engine's ambient filters.
	IgnoreGlobalFilters() Queryable[T]

	// ToList materializes every matching row in applied order.
	ToList(ctx context.Context) ([]T, error)
	// ToFirst returns the first row in applied order, or ErrNotFound.
	ToFirst(ctx context.Context) (T, error)
	// ToCount returns the number of matching rows.
	ToCount(ctx context.Context) (int64, error)
	// ToExists reports whether any row matches.
	ToExists(ctx context.Context) (bool, error)
	// ToPagedWindow returns one bounded slice of the result set.
	// Out-of-range pages yield an empty window with correct metadata.
	ToPagedWindow(ctx context.Context, page, size int) (*PagedWindow[T], error)
	// ToLazySequence streams matching rows forward-only, fetching
	// batchSize rows at a time. The sequence is finite and cannot be
	// restarted.
	ToLazySequence(ctx context.Context, batchSize int) iter.Seq2[T, error]
}

// Session is one scoped acquisition of the engine. Sessions are never
// shared across concurrent materializations; Close must run on every exit
// path.
type Session[T any] interface {
	// Query returns a fresh queryable surface bound to this session.
	Query() Queryable[T]
	// Close releases the session.
	Close() error
}

// Provider hands out sessions.
type Provider[T any] interface {
	Acquire(ctx context.Context) (Session[T], error)
}
