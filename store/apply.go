package store

import (
	"github.com/robert-malhotra/querykit/criteria"
	"github.com/robert-malhotra/querykit/engine"
)

// Apply translates a criteria into engine operations in a fixed order:
// global-filter bypass, then the filter restriction (an absent filter is
// no restriction), then each include in list order, then ordering. All
// ascending keys are applied as one block followed by all descending keys
// as a second block; the first key of the first non-empty block is the
// primary sort key. Mixed call-order interleaving is intentionally not
// reconstructed.
func Apply[T any](q engine.Queryable[T], c criteria.Criteria[T]) engine.Queryable[T] {
	if c.BypassesGlobalFilters() {
		q = q.IgnoreGlobalFilters()
	}
	if filter := c.Filter(); !filter.IsZero() {
		q = q.Where(filter)
	}
	for _, path := range c.Includes() {
		q = q.Include(path)
	}
	primary := true
	for _, path := range c.OrderAscending() {
		if primary {
			q = q.OrderBy(path, engine.Ascending)
			primary = false
		} else {
			q = q.ThenBy(path, engine.Ascending)
		}
	}
	for _, path := range c.OrderDescending() {
		if primary {
			q = q.OrderBy(path, engine.Descending)
			primary = false
		} else {
			q = q.ThenBy(path, engine.Descending)
		}
	}
	return q
}
