// Package memquery implements the execution-engine boundary over an
// in-memory slice. It is the reference engine: tests and the demo CLI run
// against it, and its behavior pins the semantics the SQL engine has to
// match.
package memquery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strings"

	"github.com/robert-malhotra/querykit/engine"
	"github.com/robert-malhotra/querykit/predicate"
)

// ProviderOption configures a Provider during construction.
type ProviderOption[T any] func(*Provider[T])

// WithGlobalFilter registers an ambient filter ANDed into every query
// unless the query bypasses global filters.
func WithGlobalFilter[T any](build func(predicate.Var) predicate.Expression) ProviderOption[T] {
	return func(p *Provider[T]) {
		p.globalFilters = append(p.globalFilters, predicate.Bind[T](build))
	}
}

// Provider hands out sessions over a fixed row set.
type Provider[T any] struct {
	rows          []T
	globalFilters []predicate.Lambda
}

// NewProvider builds a provider over the given rows. The slice is copied;
// later mutation of the caller's slice does not affect queries.
func NewProvider[T any](rows []T, opts ...ProviderOption[T]) *Provider[T] {
	p := &Provider[T]{rows: make([]T, len(rows))}
	copy(p.rows, rows)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a session over the provider's rows.
func (p *Provider[T]) Acquire(ctx context.Context) (engine.Session[T], error) {
	if err := engine.Cancelled(ctx); err != nil {
		return nil, err
	}
	return &session[T]{provider: p}, nil
}

type session[T any] struct {
	provider *Provider[T]
	closed   bool
}

func (s *session[T]) Query() engine.Queryable[T] {
	return &query[T]{session: s}
}

func (s *session[T]) Close() error {
	s.closed = true
	return nil
}

type orderKey struct {
	path string
	dir  engine.Direction
}

type query[T any] struct {
	session      *session[T]
	filter       predicate.Lambda
	includes     []string
	orders       []orderKey
	ignoreGlobal bool
}

func (q *query[T]) Where(p predicate.Lambda) engine.Queryable[T] {
	cp := *q
	cp.filter = p
	return &cp
}

func (q *query[T]) Include(path string) engine.Queryable[T] {
	cp := *q
	cp.includes = append(append([]string(nil), q.includes...), path)
	return &cp
}

func (q *query[T]) OrderBy(path string, dir engine.Direction) engine.Queryable[T] {
	cp := *q
	cp.orders = []orderKey{{path: path, dir: dir}}
	return &cp
}

func (q *query[T]) ThenBy(path string, dir engine.Direction) engine.Queryable[T] {
	cp := *q
	cp.orders = append(append([]orderKey(nil), q.orders...), orderKey{path: path, dir: dir})
	return &cp
}

func (q *query[T]) IgnoreGlobalFilters() engine.Queryable[T] {
	cp := *q
	cp.ignoreGlobal = true
	return &cp
}

// resolve runs the full pipeline: global filters, the query filter,
// include validation, then a stable multi-key sort.
func (q *query[T]) resolve(ctx context.Context) ([]T, error) {
	if err := engine.Cancelled(ctx); err != nil {
		return nil, err
	}
	if q.session.closed {
		return nil, &engine.EngineError{Op: "memquery", Err: errors.New("session closed")}
	}

	if err := q.validateIncludes(); err != nil {
		return nil, err
	}

	filters := make([]predicate.Lambda, 0, len(q.session.provider.globalFilters)+1)
	if !q.ignoreGlobal {
		filters = append(filters, q.session.provider.globalFilters...)
	}
	if !q.filter.IsZero() {
		filters = append(filters, q.filter)
	}

	var out []T
	for _, row := range q.session.provider.rows {
		keep := true
		for _, f := range filters {
			match, err := predicate.Eval(f, row)
			if err != nil {
				return nil, classify(err)
			}
			if !match {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}

	if err := q.sortRows(out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateIncludes checks every eager-load path against T's shape so a
// bad path fails at materialization instead of becoming a silent no-op.
// The rows already hold their object graphs, so a valid include needs no
// further work here. Map-shaped rows are dynamic and accept any path.
func (q *query[T]) validateIncludes() error {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	for _, path := range q.includes {
		if !typeHasPath(t, path) {
			return fmt.Errorf("%w: include %q on %v", engine.ErrInvalidSelector, path, t)
		}
	}
	return nil
}

func typeHasPath(t reflect.Type, path string) bool {
	for _, seg := range strings.Split(path, ".") {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() == reflect.Map && t.Key().Kind() == reflect.String {
			t = t.Elem()
			continue
		}
		if t.Kind() != reflect.Struct {
			return false
		}
		field, ok := t.FieldByName(seg)
		if !ok {
			return false
		}
		t = field.Type
	}
	return true
}

func (q *query[T]) sortRows(rows []T) error {
	if len(q.orders) == 0 {
		return nil
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, key := range q.orders {
			a, err := predicate.FieldValue(rows[i], key.path)
			if err != nil {
				sortErr = classify(err)
				return false
			}
			b, err := predicate.FieldValue(rows[j], key.path)
			if err != nil {
				sortErr = classify(err)
				return false
			}
			cmp, err := compareNullable(a, b)
			if err != nil {
				sortErr = &engine.EngineError{Op: "memquery order", Err: err}
				return false
			}
			if cmp == 0 {
				continue
			}
			if key.dir == engine.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return sortErr
}

// compareNullable orders nil values before everything else, matching SQL
// NULLS FIRST under ascending order.
func compareNullable(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	return predicate.CompareValues(a, b)
}

func classify(err error) error {
	if errors.Is(err, predicate.ErrUnresolvedField) {
		return fmt.Errorf("%w: %v", engine.ErrInvalidSelector, err)
	}
	return &engine.EngineError{Op: "memquery", Err: err}
}

func (q *query[T]) ToList(ctx context.Context) ([]T, error) {
	return q.resolve(ctx)
}

func (q *query[T]) ToFirst(ctx context.Context) (T, error) {
	var zero T
	rows, err := q.resolve(ctx)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, engine.ErrNotFound
	}
	return rows[0], nil
}

func (q *query[T]) ToCount(ctx context.Context) (int64, error) {
	rows, err := q.resolve(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (q *query[T]) ToExists(ctx context.Context) (bool, error) {
	rows, err := q.resolve(ctx)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (q *query[T]) ToPagedWindow(ctx context.Context, page, size int) (*engine.PagedWindow[T], error) {
	if page < 1 || size < 1 {
		return nil, fmt.Errorf("%w: page and size must be positive, got page=%d size=%d", engine.ErrConfiguration, page, size)
	}
	rows, err := q.resolve(ctx)
	if err != nil {
		return nil, err
	}
	total := int64(len(rows))
	start := (page - 1) * size
	if start >= len(rows) {
		return engine.NewPagedWindow([]T{}, page, size, total), nil
	}
	end := start + size
	if end > len(rows) {
		end = len(rows)
	}
	items := make([]T, end-start)
	copy(items, rows[start:end])
	return engine.NewPagedWindow(items, page, size, total), nil
}

func (q *query[T]) ToLazySequence(ctx context.Context, batchSize int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if batchSize < 1 {
			yield(zero, fmt.Errorf("%w: batch size must be positive, got %d", engine.ErrConfiguration, batchSize))
			return
		}
		rows, err := q.resolve(ctx)
		if err != nil {
			yield(zero, err)
			return
		}
		// One cancellation check per batch mirrors the batch-at-a-time
		// fetching of remote engines.
		for start := 0; start < len(rows); start += batchSize {
			if err := engine.Cancelled(ctx); err != nil {
				yield(zero, err)
				return
			}
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			for _, row := range rows[start:end] {
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}
