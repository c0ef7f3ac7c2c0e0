package engine

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by ToFirst when no row matches.
	ErrNotFound = errors.New("querykit: not found")
	// ErrInvalidSelector marks an include, order, or filter path that the
	// engine cannot resolve.
	ErrInvalidSelector = errors.New("querykit: invalid selector")
	// ErrConfiguration marks a caller setup error such as a missing
	// row-shape mapper or incompatible criteria shapes.
	ErrConfiguration = errors.New("querykit: configuration error")
	// ErrCancelled is surfaced when a fetch is aborted by the caller's
	// cancellation signal. Partial results are never returned silently.
	ErrCancelled = errors.New("querykit: operation cancelled")
)

// EngineError wraps a failure of the underlying execution engine. Such
// failures are surfaced, never retried here; retry policy belongs to the
// write-path collaborator.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("querykit: engine failure in %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Cancelled wraps a context error into the taxonomy. It returns nil when
// the context is still live.
func Cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}
