package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/querykit/criteria"
	"github.com/robert-malhotra/querykit/engine"
	"github.com/robert-malhotra/querykit/memquery"
	"github.com/robert-malhotra/querykit/predicate"
	"github.com/robert-malhotra/querykit/store"
)

type contact struct {
	ID        int
	FirstName string
	LastName  string
	Age       int
	Deleted   bool
}

type contactName struct {
	Full string
}

func fifteenContacts() []contact {
	rows := make([]contact, 0, 15)
	for i := 1; i <= 15; i++ {
		rows = append(rows, contact{ID: i, FirstName: fmt.Sprintf("c%02d", i), LastName: "Batch", Age: 20 + i})
	}
	return rows
}

var trio = []contact{
	{ID: 1, FirstName: "John", LastName: "Smith", Age: 30},
	{ID: 2, FirstName: "Jane", LastName: "Smith", Age: 25},
	{ID: 3, FirstName: "Bob", LastName: "Doe", Age: 40},
}

func newStore(t *testing.T, rows []contact, opts ...store.Option[contact]) *store.Store[contact] {
	t.Helper()
	s, err := store.New[contact](memquery.NewProvider(rows), opts...)
	require.NoError(t, err)
	return s
}

func firstNameIs(name string) criteria.Criteria[contact] {
	return criteria.New[contact]().Where(func(c predicate.Var) predicate.Expression {
		return c.Field("FirstName").Eq(name)
	})
}

func lastNameIs(name string) criteria.Criteria[contact] {
	return criteria.New[contact]().Where(func(c predicate.Var) predicate.Expression {
		return c.Field("LastName").Eq(name)
	})
}

func ids(rows []contact) []int {
	out := make([]int, len(rows))
	for i, row := range rows {
		out[i] = row.ID
	}
	return out
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := store.New[contact](nil)
	assert.ErrorIs(t, err, engine.ErrConfiguration)
}

func TestExistsAndCount(t *testing.T) {
	s := newStore(t, trio)
	ctx := context.Background()

	ok, err := s.Exists(ctx, lastNameIs("Smith"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, lastNameIs("Nobody"))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Count(ctx, lastNameIs("Smith"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Count(ctx, criteria.New[contact]())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "empty criteria counts everything")
}

func TestFirstHonorsOrdering(t *testing.T) {
	s := newStore(t, trio)
	ctx := context.Background()

	sorted := criteria.New[contact]().OrderBy("LastName").OrderBy("FirstName")
	first, err := s.First(ctx, sorted)
	require.NoError(t, err)
	assert.Equal(t, "Bob", first.FirstName)

	_, err = s.First(ctx, firstNameIs("Nobody"))
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestFirstOrDefault(t *testing.T) {
	s := newStore(t, trio)
	ctx := context.Background()

	row, found, err := s.FirstOrDefault(ctx, firstNameIs("Jane"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, row.ID)

	row, found, err = s.FirstOrDefault(ctx, firstNameIs("Nobody"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, row)
}

func TestListMultiKeyOrdering(t *testing.T) {
	s := newStore(t, trio)

	sorted := criteria.New[contact]().OrderBy("LastName").OrderBy("FirstName")
	rows, err := s.List(context.Background(), sorted)
	require.NoError(t, err)
	// Doe first, then Smiths sorted by first name.
	assert.Equal(t, []int{3, 2, 1}, ids(rows))
}

func TestOrderByDescendingBlockFollowsAscending(t *testing.T) {
	rows := []contact{
		{ID: 1, LastName: "Smith", Age: 30},
		{ID: 2, LastName: "Smith", Age: 50},
		{ID: 3, LastName: "Doe", Age: 10},
	}
	s := newStore(t, rows)

	// All ascending keys apply first, then descending keys break ties.
	sorted := criteria.New[contact]().OrderBy("LastName").OrderByDescending("Age")
	got, err := s.List(context.Background(), sorted)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, ids(got))
}

func TestAndWithEmptyCriteriaBehavesAsOperandAlone(t *testing.T) {
	s := newStore(t, trio)
	ctx := context.Background()

	base := lastNameIs("Smith").OrderBy("FirstName")
	combined := base.And(criteria.New[contact]())

	want, err := s.List(ctx, base)
	require.NoError(t, err)
	got, err := s.List(ctx, combined)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOrComposition(t *testing.T) {
	s := newStore(t, trio)

	either := firstNameIs("John").Or(firstNameIs("Bob")).OrderBy("ID")
	rows, err := s.List(context.Background(), either)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids(rows))
}

func TestPagedList(t *testing.T) {
	s := newStore(t, fifteenContacts())
	ctx := context.Background()
	byID := criteria.New[contact]().OrderBy("ID")

	t.Run("window metadata", func(t *testing.T) {
		window, err := s.PagedList(ctx, byID, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, ids(window.Items))
		assert.Equal(t, int64(15), window.TotalCount)
		assert.Equal(t, 3, window.TotalPages())
		assert.True(t, window.HasNext())
		assert.False(t, window.HasPrevious())
		assert.False(t, window.IsLast())
	})

	t.Run("pages partition the ordered result", func(t *testing.T) {
		var all []int
		for page := 1; page <= 3; page++ {
			window, err := s.PagedList(ctx, byID, page, 5)
			require.NoError(t, err)
			all = append(all, ids(window.Items)...)
		}
		want, err := s.List(ctx, byID)
		require.NoError(t, err)
		assert.Equal(t, ids(want), all)
	})

	t.Run("empty result set", func(t *testing.T) {
		window, err := s.PagedList(ctx, firstNameIs("Nobody"), 1, 5)
		require.NoError(t, err)
		assert.Empty(t, window.Items)
		assert.NotNil(t, window.Items)
		assert.Equal(t, int64(0), window.TotalCount)
		assert.Equal(t, 0, window.TotalPages())
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, err := s.PagedList(ctx, byID, 0, 5)
		assert.ErrorIs(t, err, engine.ErrConfiguration)
	})
}

func TestLazySequence(t *testing.T) {
	s := newStore(t, fifteenContacts(), store.WithBatchSize[contact](4))
	byID := criteria.New[contact]().OrderBy("ID")

	t.Run("streams every row once", func(t *testing.T) {
		var got []int
		for row, err := range s.LazySequence(context.Background(), byID) {
			require.NoError(t, err)
			got = append(got, row.ID)
		}
		assert.Len(t, got, 15)
		want, err := s.List(context.Background(), byID)
		require.NoError(t, err)
		assert.Equal(t, ids(want), got)
	})

	t.Run("cancellation stops the stream", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var errs []error
		for _, err := range s.LazySequence(ctx, byID) {
			if err != nil {
				errs = append(errs, err)
			}
		}
		require.NotEmpty(t, errs)
		assert.ErrorIs(t, errs[len(errs)-1], engine.ErrCancelled)
	})
}

func TestCancelledContextSurfacesErrCancelled(t *testing.T) {
	s := newStore(t, trio)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.List(ctx, criteria.New[contact]())
	assert.ErrorIs(t, err, engine.ErrCancelled)
}

func TestInvalidSelectorFromCriteria(t *testing.T) {
	s := newStore(t, trio)

	_, err := s.List(context.Background(), criteria.New[contact]().OrderBy("NoSuchField"))
	assert.ErrorIs(t, err, engine.ErrInvalidSelector)
}

// countingProvider wraps an engine provider to observe session lifecycle.
type countingProvider struct {
	inner    engine.Provider[contact]
	acquired int
	open     int
}

func (p *countingProvider) Acquire(ctx context.Context) (engine.Session[contact], error) {
	session, err := p.inner.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	p.acquired++
	p.open++
	return &countingSession{Session: session, provider: p}, nil
}

type countingSession struct {
	engine.Session[contact]
	provider *countingProvider
}

func (s *countingSession) Close() error {
	s.provider.open--
	return s.Session.Close()
}

func TestSessionsAreReleasedOnEveryPath(t *testing.T) {
	provider := &countingProvider{inner: memquery.NewProvider(trio)}
	s, err := store.New[contact](provider)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.List(ctx, criteria.New[contact]())
	require.NoError(t, err)

	_, err = s.First(ctx, firstNameIs("Nobody"))
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = s.List(ctx, criteria.New[contact]().OrderBy("NoSuchField"))
	assert.ErrorIs(t, err, engine.ErrInvalidSelector)

	for row, err := range s.LazySequence(ctx, criteria.New[contact]()) {
		_ = row
		require.NoError(t, err)
		break
	}

	assert.Equal(t, 4, provider.acquired)
	assert.Equal(t, 0, provider.open, "every materializer releases its session")
}

func TestProjectedMaterializers(t *testing.T) {
	reg := store.NewMapperRegistry()
	store.RegisterMapper(reg, func(c contact) contactName {
		return contactName{Full: c.FirstName + " " + c.LastName}
	})
	s := newStore(t, trio, store.WithMappers[contact](reg))
	ctx := context.Background()

	t.Run("list projects each row", func(t *testing.T) {
		names, err := store.ListAs[contact, contactName](ctx, s, lastNameIs("Smith").OrderBy("FirstName"))
		require.NoError(t, err)
		assert.Equal(t, []contactName{{Full: "Jane Smith"}, {Full: "John Smith"}}, names)
	})

	t.Run("first projects", func(t *testing.T) {
		name, err := store.FirstAs[contact, contactName](ctx, s, firstNameIs("Bob"))
		require.NoError(t, err)
		assert.Equal(t, "Bob Doe", name.Full)
	})

	t.Run("first or default projects", func(t *testing.T) {
		name, found, err := store.FirstOrDefaultAs[contact, contactName](ctx, s, firstNameIs("Nobody"))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Zero(t, name)
	})

	t.Run("paged window keeps metadata", func(t *testing.T) {
		window, err := store.PagedListAs[contact, contactName](ctx, s, criteria.New[contact]().OrderBy("ID"), 1, 2)
		require.NoError(t, err)
		assert.Len(t, window.Items, 2)
		assert.Equal(t, int64(3), window.TotalCount)
		assert.Equal(t, 2, window.TotalPages())
	})

	t.Run("lazy sequence projects", func(t *testing.T) {
		var names []string
		for name, err := range store.LazySequenceAs[contact, contactName](ctx, s, criteria.New[contact]().OrderBy("ID")) {
			require.NoError(t, err)
			names = append(names, name.Full)
		}
		assert.Equal(t, []string{"John Smith", "Jane Smith", "Bob Doe"}, names)
	})

	t.Run("count validates mapper", func(t *testing.T) {
		n, err := store.CountAs[contact, contactName](ctx, s, criteria.New[contact]())
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestMissingMapperFailsBeforeQuerying(t *testing.T) {
	provider := &countingProvider{inner: memquery.NewProvider(trio)}
	s, err := store.New[contact](provider)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.ListAs[contact, contactName](ctx, s, criteria.New[contact]())
	assert.ErrorIs(t, err, store.ErrMapperNotRegistered)
	assert.ErrorIs(t, err, engine.ErrConfiguration)

	_, err = store.FirstAs[contact, contactName](ctx, s, criteria.New[contact]())
	assert.ErrorIs(t, err, store.ErrMapperNotRegistered)

	assert.Equal(t, 0, provider.acquired, "mapper resolution precedes query execution")
}

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	debugs []string
	errors []string
}

func (l *recordingLogger) Debugf(format string, args ...any) {
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func TestLoggerObservesMaterializerLifecycle(t *testing.T) {
	logger := &recordingLogger{}
	s := newStore(t, trio, store.WithLogger[contact](logger))
	ctx := context.Background()

	_, err := s.List(ctx, lastNameIs("Smith").Include("Orders"))
	assert.ErrorIs(t, err, engine.ErrInvalidSelector)

	_, err = s.Count(ctx, criteria.New[contact]())
	require.NoError(t, err)

	require.Len(t, logger.debugs, 2)
	assert.Contains(t, logger.debugs[0], "list")
	assert.Contains(t, logger.debugs[0], "filtered=true")
	assert.Contains(t, logger.debugs[0], "includes=1")
	assert.Contains(t, logger.debugs[1], "count")
	assert.Contains(t, logger.debugs[1], "filtered=false")

	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "list failed")
}

func TestOptionValidation(t *testing.T) {
	provider := memquery.NewProvider(trio)

	_, err := store.New[contact](provider, store.WithBatchSize[contact](0))
	assert.ErrorIs(t, err, engine.ErrConfiguration)

	_, err = store.New[contact](provider, store.WithMappers[contact](nil))
	assert.ErrorIs(t, err, engine.ErrConfiguration)
}
