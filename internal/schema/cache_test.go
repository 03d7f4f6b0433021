package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConstraints() []ConstraintRecord {
	return []ConstraintRecord{
		{Kind: KindPrimaryKey, Name: "books_pkey", Columns: []string{"id"}},
		{Kind: KindUnique, Name: "books_title_isbn_uniq", Columns: []string{"title", "isbn"}},
		{Kind: KindForeignKey, Name: "author_id_refs_id_1234", Columns: []string{"author_id"}},
	}
}

func TestConstraintCacheIntrospectsOnce(t *testing.T) {
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{"books": sampleConstraints()}}
	cache := NewConstraintCache(intro.introspect)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, cache.State("db", "books"))

	first, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)
	second, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)
	column, err := cache.LookupColumn(ctx, "db", "books", "title")
	require.NoError(t, err)

	assert.Equal(t, 1, intro.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, StatePopulated, cache.State("db", "books"))
	require.Len(t, column, 1)
	assert.Equal(t, "books_title_isbn_uniq", column[0].Name)
}

func TestConstraintCacheMissingColumnIsEmpty(t *testing.T) {
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{"books": sampleConstraints()}}
	cache := NewConstraintCache(intro.introspect)

	records, err := cache.LookupColumn(context.Background(), "db", "books", "summary")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, intro.calls)
}

func TestConstraintCacheInvalidateForcesRefill(t *testing.T) {
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{"books": sampleConstraints()}}
	cache := NewConstraintCache(intro.introspect)
	ctx := context.Background()

	assert.Nil(t, cache.Invalidate("db", "books"), "nothing to snapshot before the first lookup")

	_, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)

	snapshot := cache.Invalidate("db", "books")
	assert.Contains(t, snapshot, "id")
	assert.Equal(t, StateInvalid, cache.State("db", "books"))

	_, err = cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)
	assert.Equal(t, 2, intro.calls)
}

func TestConstraintCacheKeysByDatabase(t *testing.T) {
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{"books": sampleConstraints()}}
	cache := NewConstraintCache(intro.introspect)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, "one", "books")
	require.NoError(t, err)
	_, err = cache.Lookup(ctx, "two", "books")
	require.NoError(t, err)

	assert.Equal(t, 2, intro.calls)
}

func TestConstraintCacheForgetAndCopyNeedPopulatedEntry(t *testing.T) {
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{"books": sampleConstraints()}}
	cache := NewConstraintCache(intro.introspect)
	ctx := context.Background()

	cache.ForgetColumn("db", "books", "id")
	cache.CopyColumn("db", "books", "id", "pk")
	assert.Equal(t, StateUninitialized, cache.State("db", "books"))

	_, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)

	cache.CopyColumn("db", "books", "author_id", "writer_id")
	cache.ForgetColumn("db", "books", "author_id")

	columns, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)
	assert.Equal(t, 1, intro.calls)
	assert.NotContains(t, columns, "author_id")
	require.Len(t, columns["writer_id"], 1)
	assert.Equal(t, []string{"writer_id"}, columns["writer_id"][0].Columns)
	assert.Equal(t, KindForeignKey, columns["writer_id"][0].Kind)
}

func TestConstraintCacheRestore(t *testing.T) {
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{"books": sampleConstraints()}}
	cache := NewConstraintCache(intro.introspect)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)

	snapshot := cache.Invalidate("db", "books")
	cache.Restore("db", "books", snapshot)
	assert.Equal(t, StatePopulated, cache.State("db", "books"))

	cache.Restore("db", "authors", nil)
	assert.Equal(t, StateUninitialized, cache.State("db", "authors"))
}

func TestConstraintCacheIntrospectionError(t *testing.T) {
	cache := NewConstraintCache(func(context.Context, string, string) ([]ConstraintRecord, error) {
		return nil, errors.New("connection refused")
	})

	_, err := cache.Lookup(context.Background(), "db", "books")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotEqual(t, StatePopulated, cache.State("db", "books"))
}

func TestConstraintCacheReturnsCopies(t *testing.T) {
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{"books": sampleConstraints()}}
	cache := NewConstraintCache(intro.introspect)
	ctx := context.Background()

	columns, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)
	delete(columns, "id")

	again, err := cache.Lookup(ctx, "db", "books")
	require.NoError(t, err)
	assert.Contains(t, again, "id")
}
