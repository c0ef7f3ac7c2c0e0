package engine

// PagedWindow is a bounded slice of a result set with page metadata. It is
// created per materializer call and not reused.
type PagedWindow[T any] struct {
	// Page is the 1-based page number that was requested.
	Page int
	// Size is the requested page size.
	Size int
	// TotalCount is the number of rows matching the criteria overall.
	TotalCount int64
	// Items holds the rows of this page; empty for out-of-range pages.
	Items []T
}

// NewPagedWindow assembles a window from one fetched page.
func NewPagedWindow[T any](items []T, page, size int, total int64) *PagedWindow[T] {
	if items == nil {
		items = []T{}
	}
	return &PagedWindow[T]{Page: page, Size: size, TotalCount: total, Items: items}
}

// TotalPages derives the page count from the total and the page size.
func (w *PagedWindow[T]) TotalPages() int {
	if w.Size <= 0 || w.TotalCount <= 0 {
		return 0
	}
	return int((w.TotalCount + int64(w.Size) - 1) / int64(w.Size))
}

// HasNext reports whether a later page exists.
func (w *PagedWindow[T]) HasNext() bool {
	return w.Page < w.TotalPages()
}

// HasPrevious reports whether an earlier page exists.
func (w *PagedWindow[T]) HasPrevious() bool {
	return w.Page > 1
}

// IsLast reports whether this is the final page. A page past the end of
// the result set counts as last.
func (w *PagedWindow[T]) IsLast() bool {
	return !w.HasNext()
}
