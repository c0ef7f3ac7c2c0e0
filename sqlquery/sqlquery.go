// Package sqlquery implements the execution-engine boundary over a SQL
// database: squirrel generates the statements, sqlx executes and scans
// them. Rows of T are scanned through sqlx's db struct tags.
package sqlquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/robert-malhotra/querykit/engine"
	"github.com/robert-malhotra/querykit/predicate"
)

// RelationLoader eagerly loads one related object graph onto the fetched
// rows, typically with a secondary query.
type RelationLoader[T any] func(ctx context.Context, q sqlx.QueryerContext, rows []*T) error

// Table maps T onto a SQL table: its name, the field-path to column map
// used by filters and ordering, ambient filter conditions, and relation
// loaders keyed by include path.
type Table[T any] struct {
	Name          string
	Columns       map[string]string
	GlobalFilters []sq.Sqlizer
	Relations     map[string]RelationLoader[T]
}

// ProviderOption configures a Provider during construction.
type ProviderOption[T any] func(*Provider[T])

// WithPlaceholderFormat sets the statement placeholder style; the default
// is question marks. Postgres callers want squirrel.Dollar.
func WithPlaceholderFormat[T any](format sq.PlaceholderFormat) ProviderOption[T] {
	return func(p *Provider[T]) {
		p.placeholder = format
	}
}

// Provider hands out sessions backed by pooled connections.
type Provider[T any] struct {
	db          *sqlx.DB
	table       Table[T]
	placeholder sq.PlaceholderFormat
	columnList  []string
}

// NewProvider builds a provider over an open database handle.
func NewProvider[T any](db *sqlx.DB, table Table[T], opts ...ProviderOption[T]) (*Provider[T], error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database handle", engine.ErrConfiguration)
	}
	if table.Name == "" {
		return nil, fmt.Errorf("%w: empty table name", engine.ErrConfiguration)
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("%w: table %q has no column map", engine.ErrConfiguration, table.Name)
	}
	p := &Provider[T]{
		db:          db,
		table:       table,
		placeholder: sq.Question,
		columnList:  selectColumns(table.Columns),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// selectColumns returns the mapped columns in a deterministic order so
// repeated queries produce identical statements.
func selectColumns(columns map[string]string) []string {
	out := make([]string, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, column := range columns {
		if !seen[column] {
			seen[column] = true
			out = append(out, column)
		}
	}
	sort.Strings(out)
	return out
}

// Acquire checks a connection out of the pool for one materializer call.
func (p *Provider[T]) Acquire(ctx context.Context) (engine.Session[T], error) {
	if err := engine.Cancelled(ctx); err != nil {
		return nil, err
	}
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, classify(ctx, "acquire", err)
	}
	return &session[T]{provider: p, conn: conn}, nil
}

type session[T any] struct {
	provider *Provider[T]
	conn     *sqlx.Conn
}

func (s *session[T]) Query() engine.Queryable[T] {
	return &query[T]{session: s}
}

func (s *session[T]) Close() error {
	return s.conn.Close()
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

// conditions collects the ambient filters plus the translated query
// filter. It also validates includes so a bad selector fails before any
// statement runs.
func (q *query[T]) conditions() ([]sq.Sqlizer, error) {
	table := q.session.provider.table
	for _, path := range q.includes {
		if _, ok := table.Relations[path]; !ok {
			return nil, fmt.Errorf("%w: no relation loader for include %q", engine.ErrInvalidSelector, path)
		}
	}

	var conds []sq.Sqlizer
	if !q.ignoreGlobal {
		conds = append(conds, table.GlobalFilters...)
	}
	if !q.filter.IsZero() {
		cond, err := translate(q.filter.Body, table.Columns)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (q *query[T]) selectBuilder() (sq.SelectBuilder, error) {
	p := q.session.provider
	b := sq.Select(p.columnList...).
		From(p.table.Name).
		PlaceholderFormat(p.placeholder)

	conds, err := q.conditions()
	if err != nil {
		return b, err
	}
	for _, cond := range conds {
		b = b.Where(cond)
	}

	for _, key := range q.orders {
		column, err := resolveColumn(key.path, p.table.Columns)
		if err != nil {
			return b, err
		}
		// Explicit NULLS placement keeps pagination over nullable keys
		// identical to the in-memory engine, which sorts nil smallest.
		// Postgres and sqlite both accept the clause.
		direction := "ASC NULLS FIRST"
		if key.dir == engine.Descending {
			direction = "DESC NULLS LAST"
		}
		b = b.OrderBy(column + " " + direction)
	}
	return b, nil
}

func (q *query[T]) countBuilder() (sq.SelectBuilder, error) {
	p := q.session.provider
	b := sq.Select("COUNT(*)").
		From(p.table.Name).
		PlaceholderFormat(p.placeholder)

	conds, err := q.conditions()
	if err != nil {
		return b, err
	}
	for _, cond := range conds {
		b = b.Where(cond)
	}
	return b, nil
}

func (q *query[T]) fetch(ctx context.Context, b sq.SelectBuilder) ([]T, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, &engine.EngineError{Op: "build select", Err: err}
	}
	var rows []T
	if err := q.session.conn.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, classify(ctx, "select", err)
	}
	if err := q.runIncludes(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *query[T]) runIncludes(ctx context.Context, rows []T) error {
	if len(q.includes) == 0 || len(rows) == 0 {
		return nil
	}
	ptrs := make([]*T, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	relations := q.session.provider.table.Relations
	for _, path := range q.includes {
		if err := relations[path](ctx, q.session.conn, ptrs); err != nil {
			return classify(ctx, "include "+path, err)
		}
	}
	return nil
}

func (q *query[T]) ToList(ctx context.Context) ([]T, error) {
	b, err := q.selectBuilder()
	if err != nil {
		return nil, err
	}
	return q.fetch(ctx, b)
}

func (q *query[T]) ToFirst(ctx context.Context) (T, error) {
	var zero T
	b, err := q.selectBuilder()
	if err != nil {
		return zero, err
	}
	rows, err := q.fetch(ctx, b.Limit(1))
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, engine.ErrNotFound
	}
	return rows[0], nil
}

func (q *query[T]) ToCount(ctx context.Context) (int64, error) {
	b, err := q.countBuilder()
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return 0, &engine.EngineError{Op: "build count", Err: err}
	}
	var n int64
	if err := q.session.conn.GetContext(ctx, &n, sqlStr, args...); err != nil {
		return 0, classify(ctx, "count", err)
	}
	return n, nil
}

func (q *query[T]) ToExists(ctx context.Context) (bool, error) {
	n, err := q.ToCount(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *query[T]) ToPagedWindow(ctx context.Context, page, size int) (*engine.PagedWindow[T], error) {
	if page < 1 || size < 1 {
		return nil, fmt.Errorf("%w: page and size must be positive, got page=%d size=%d", engine.ErrConfiguration, page, size)
	}
	total, err := q.ToCount(ctx)
	if err != nil {
		return nil, err
	}
	offset := uint64(page-1) * uint64(size)
	if total == 0 || offset >= uint64(total) {
		return engine.NewPagedWindow([]T{}, page, size, total), nil
	}
	b, err := q.selectBuilder()
	if err != nil {
		return nil, err
	}
	rows, err := q.fetch(ctx, b.Limit(uint64(size)).Offset(offset))
	if err != nil {
		return nil, err
	}
	return engine.NewPagedWindow(rows, page, size, total), nil
}

func (q *query[T]) ToLazySequence(ctx context.Context, batchSize int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if batchSize < 1 {
			yield(zero, fmt.Errorf("%w: batch size must be positive, got %d", engine.ErrConfiguration, batchSize))
			return
		}
		var offset uint64
		for {
			b, err := q.selectBuilder()
			if err != nil {
				yield(zero, err)
				return
			}
			batch, err := q.fetch(ctx, b.Limit(uint64(batchSize)).Offset(offset))
			if err != nil {
				yield(zero, err)
				return
			}
			for _, row := range batch {
				if !yield(row, nil) {
					return
				}
			}
			if len(batch) < batchSize {
				return
			}
			offset += uint64(batchSize)
		}
	}
}

// classify maps driver errors into the boundary taxonomy. Transient
// engine failures are surfaced, not retried; the write-path collaborator
// owns retry policy.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", engine.ErrCancelled, op, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ErrNotFound
	}
	return &engine.EngineError{Op: op, Err: err}
}
