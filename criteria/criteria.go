// Package criteria provides reusable, composable query intents: a filter
// predicate, eager-load paths, ordering keys, and a global-filter bypass
// flag. Criteria are immutable values; builder methods and the And/Or
// combinators return rebuilt copies, so a Criteria can be shared across
// concurrent materializations.
package criteria

import (
	"github.com/robert-malhotra/querykit/predicate"
)

// Criteria describes what to query for rows of T without any awareness of
// the storage schema. The zero value matches the empty criteria.
type Criteria[T any] struct {
	filter    predicate.Lambda
	includes  []string
	orderAsc  []string
	orderDesc []string
	bypass    bool
}

// New returns an empty Criteria for T.
func New[T any]() Criteria[T] {
	return Criteria[T]{}
}

// Where replaces the filter predicate; the last write wins. The predicate
// is bound to T's shape, so combining criteria of differing shapes is a
// compile-time error.
func (c Criteria[T]) Where(build func(predicate.Var) predicate.Expression) Criteria[T] {
	c.filter = predicate.Bind[T](build)
	return c
}

// Include appends an eager-load path. Include order does not affect
// correctness but is preserved for reproducible query plans.
func (c Criteria[T]) Include(path string) Criteria[T] {
	c.includes = appendCopy(c.includes, path)
	return c
}

// OrderBy appends an ascending sort key.
func (c Criteria[T]) OrderBy(path string) Criteria[T] {
	c.orderAsc = appendCopy(c.orderAsc, path)
	return c
}

// OrderByDescending appends a descending sort key.
func (c Criteria[T]) OrderByDescending(path string) Criteria[T] {
	c.orderDesc = appendCopy(c.orderDesc, path)
	return c
}

// BypassGlobalFilters instructs the engine to ignore its ambient filters.
// The flag is one-way; there is no disable operation on an instance.
func (c Criteria[T]) BypassGlobalFilters() Criteria[T] {
	c.bypass = true
	return c
}

// And combines two criteria into one whose filter is the conjunction of
// both. Include and order lists, and the bypass flag, are inherited from
// the left operand only; that is a documented policy, not an oversight.
func (c Criteria[T]) And(other Criteria[T]) Criteria[T] {
	return c.combine(other, predicate.OpAnd)
}

// Or combines two criteria into one whose filter is the disjunction of
// both. Include and order lists, and the bypass flag, are inherited from
// the left operand only.
func (c Criteria[T]) Or(other Criteria[T]) Criteria[T] {
	return c.combine(other, predicate.OpOr)
}

func (c Criteria[T]) combine(other Criteria[T], op predicate.LogicalOp) Criteria[T] {
	combined, err := predicate.Combine(c.filter, other.filter, op)
	if err != nil {
		// Both operands are bound to T, so shapes always agree.
		panic(err)
	}
	c.filter = combined
	return c
}

// Match evaluates the filter against a single in-memory entity. A
// criteria without a filter matches nothing here, even though the applier
// treats an absent filter as no restriction; callers rely on the
// distinction for in-memory testing.
func (c Criteria[T]) Match(entity T) (bool, error) {
	if c.filter.IsZero() {
		return false, nil
	}
	return predicate.Eval(c.filter, entity)
}

// Filter returns the filter predicate; zero when absent.
func (c Criteria[T]) Filter() predicate.Lambda {
	return c.filter
}

// Includes returns the eager-load paths in insertion order.
func (c Criteria[T]) Includes() []string {
	return copySlice(c.includes)
}

// OrderAscending returns the ascending sort keys in insertion order.
func (c Criteria[T]) OrderAscending() []string {
	return copySlice(c.orderAsc)
}

// OrderDescending returns the descending sort keys in insertion order.
func (c Criteria[T]) OrderDescending() []string {
	return copySlice(c.orderDesc)
}

// BypassesGlobalFilters reports whether the bypass flag is set.
func (c Criteria[T]) BypassesGlobalFilters() bool {
	return c.bypass
}

// appendCopy keeps the receiver's slice intact when criteria built from a
// shared prefix diverge.
func appendCopy(s []string, v string) []string {
	out := make([]string, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}

func copySlice(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
