package memquery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/querykit/engine"
	"github.com/robert-malhotra/querykit/memquery"
	"github.com/robert-malhotra/querykit/predicate"
)

type contact struct {
	ID        int
	FirstName string
	LastName  string
	Age       *int
	Deleted   bool
	Address   *address
}

type address struct {
	City string
}

func intp(n int) *int { return &n }

func sampleContacts() []contact {
	return []contact{
		{ID: 1, FirstName: "John", LastName: "Smith", Age: intp(30)},
		{ID: 2, FirstName: "Jane", LastName: "Smith", Age: intp(25)},
		{ID: 3, FirstName: "Bob", LastName: "Doe", Age: intp(40), Address: &address{City: "Oslo"}},
		{ID: 4, FirstName: "Ada", LastName: "Young", Age: nil},
		{ID: 5, FirstName: "Eve", LastName: "Gone", Age: intp(50), Deleted: true},
	}
}

func openQuery(t *testing.T, p *memquery.Provider[contact]) engine.Queryable[contact] {
	t.Helper()
	session, err := p.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session.Query()
}

func ids(rows []contact) []int {
	out := make([]int, len(rows))
	for i, row := range rows {
		out[i] = row.ID
	}
	return out
}

func TestGlobalFilterAndBypass(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts(),
		memquery.WithGlobalFilter[contact](func(c predicate.Var) predicate.Expression {
			return c.Field("Deleted").Eq(false)
		}))

	q := openQuery(t, provider)

	rows, err := q.ToList(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, ids(rows), 5)
	assert.Len(t, rows, 4)

	all, err := q.IgnoreGlobalFilters().ToList(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestFilterAndMultiKeyOrdering(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())
	q := openQuery(t, provider).
		Where(predicate.Bind[contact](func(c predicate.Var) predicate.Expression {
			return c.Field("LastName").In("Smith", "Doe")
		})).
		OrderBy("LastName", engine.Ascending).
		ThenBy("FirstName", engine.Ascending)

	rows, err := q.ToList(context.Background())
	require.NoError(t, err)
	// Doe sorts before Smith, then Jane before John.
	assert.Equal(t, []int{3, 2, 1}, ids(rows))
}

func TestNullsSortFirstAscending(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())
	rows, err := openQuery(t, provider).
		OrderBy("Age", engine.Ascending).
		ToList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rows[0].ID, "the row with nil Age goes first")
	assert.Equal(t, []int{4, 2, 1, 3, 5}, ids(rows))
}

func TestOrderingComparisonSkipsNullRows(t *testing.T) {
	// A row whose field is nil is excluded by a range filter; it must not
	// fail the whole query.
	provider := memquery.NewProvider(sampleContacts())
	rows, err := openQuery(t, provider).
		Where(predicate.Bind[contact](func(c predicate.Var) predicate.Expression {
			return c.Field("Age").Gt(30)
		})).
		OrderBy("ID", engine.Ascending).
		ToList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, ids(rows))
}

func TestDescendingOrder(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())
	rows, err := openQuery(t, provider).
		OrderBy("Age", engine.Descending).
		ToList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 1, 2, 4}, ids(rows))
}

func TestInvalidSelectors(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())

	t.Run("order by unknown field", func(t *testing.T) {
		_, err := openQuery(t, provider).
			OrderBy("Nope", engine.Ascending).
			ToList(context.Background())
		assert.ErrorIs(t, err, engine.ErrInvalidSelector)
	})

	t.Run("filter on unknown field", func(t *testing.T) {
		_, err := openQuery(t, provider).
			Where(predicate.Bind[contact](func(c predicate.Var) predicate.Expression {
				return c.Field("Nope").Eq(1)
			})).
			ToList(context.Background())
		assert.ErrorIs(t, err, engine.ErrInvalidSelector)
	})

	t.Run("unknown include path", func(t *testing.T) {
		_, err := openQuery(t, provider).Include("Orders").ToList(context.Background())
		assert.ErrorIs(t, err, engine.ErrInvalidSelector)
	})

	t.Run("valid nested include", func(t *testing.T) {
		_, err := openQuery(t, provider).Include("Address.City").ToList(context.Background())
		assert.NoError(t, err)
	})
}

func TestFirstAndExistence(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())
	ctx := context.Background()

	smiths := predicate.Bind[contact](func(c predicate.Var) predicate.Expression {
		return c.Field("LastName").Eq("Smith")
	})
	nobody := predicate.Bind[contact](func(c predicate.Var) predicate.Expression {
		return c.Field("LastName").Eq("Nobody")
	})

	first, err := openQuery(t, provider).Where(smiths).OrderBy("FirstName", engine.Ascending).ToFirst(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jane", first.FirstName)

	_, err = openQuery(t, provider).Where(nobody).ToFirst(ctx)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	ok, err := openQuery(t, provider).Where(smiths).ToExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := openQuery(t, provider).Where(smiths).ToCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPagedWindow(t *testing.T) {
	rows := make([]contact, 0, 15)
	for i := 1; i <= 15; i++ {
		rows = append(rows, contact{ID: i, FirstName: "c", LastName: "c"})
	}
	provider := memquery.NewProvider(rows)
	ctx := context.Background()

	t.Run("first page", func(t *testing.T) {
		window, err := openQuery(t, provider).OrderBy("ID", engine.Ascending).ToPagedWindow(ctx, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, ids(window.Items))
		assert.Equal(t, int64(15), window.TotalCount)
		assert.Equal(t, 3, window.TotalPages())
		assert.True(t, window.HasNext())
		assert.False(t, window.HasPrevious())
	})

	t.Run("last page", func(t *testing.T) {
		window, err := openQuery(t, provider).OrderBy("ID", engine.Ascending).ToPagedWindow(ctx, 3, 5)
		require.NoError(t, err)
		assert.Equal(t, []int{11, 12, 13, 14, 15}, ids(window.Items))
		assert.False(t, window.HasNext())
		assert.True(t, window.IsLast())
	})

	t.Run("out of range page is empty, not an error", func(t *testing.T) {
		window, err := openQuery(t, provider).ToPagedWindow(ctx, 9, 5)
		require.NoError(t, err)
		assert.Empty(t, window.Items)
		assert.Equal(t, int64(15), window.TotalCount)
	})

	t.Run("invalid page and size", func(t *testing.T) {
		_, err := openQuery(t, provider).ToPagedWindow(ctx, 0, 5)
		assert.ErrorIs(t, err, engine.ErrConfiguration)
		_, err = openQuery(t, provider).ToPagedWindow(ctx, 1, 0)
		assert.ErrorIs(t, err, engine.ErrConfiguration)
	})
}

func TestLazySequence(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())

	t.Run("streams all rows in order", func(t *testing.T) {
		var got []int
		for row, err := range openQuery(t, provider).OrderBy("ID", engine.Ascending).ToLazySequence(context.Background(), 2) {
			require.NoError(t, err)
			got = append(got, row.ID)
		}
		assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
	})

	t.Run("stops when consumer breaks", func(t *testing.T) {
		var got []int
		for row, err := range openQuery(t, provider).OrderBy("ID", engine.Ascending).ToLazySequence(context.Background(), 2) {
			require.NoError(t, err)
			got = append(got, row.ID)
			if len(got) == 3 {
				break
			}
		}
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("rejects non-positive batch size", func(t *testing.T) {
		var errs []error
		for _, err := range openQuery(t, provider).ToLazySequence(context.Background(), 0) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], engine.ErrConfiguration)
	})
}

func TestCancellation(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Acquire(ctx)
	assert.ErrorIs(t, err, engine.ErrCancelled)

	q := openQuery(t, provider)
	_, err = q.ToList(ctx)
	assert.ErrorIs(t, err, engine.ErrCancelled)
}

func TestClosedSessionFails(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())
	session, err := provider.Acquire(context.Background())
	require.NoError(t, err)
	q := session.Query()
	require.NoError(t, session.Close())

	_, err = q.ToList(context.Background())
	var engineErr *engine.EngineError
	assert.True(t, errors.As(err, &engineErr))
}

func TestProviderCopiesRows(t *testing.T) {
	rows := sampleContacts()
	provider := memquery.NewProvider(rows)
	rows[0].FirstName = "Mutated"

	first, err := openQuery(t, provider).
		Where(predicate.Bind[contact](func(c predicate.Var) predicate.Expression {
			return c.Field("ID").Eq(1)
		})).
		ToFirst(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "John", first.FirstName)
}

func TestRepeatedQueriesAreDeterministic(t *testing.T) {
	provider := memquery.NewProvider(sampleContacts())
	q := openQuery(t, provider).OrderBy("LastName", engine.Ascending).ThenBy("ID", engine.Ascending)

	first, err := q.ToList(context.Background())
	require.NoError(t, err)
	second, err := q.ToList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(second))
}
