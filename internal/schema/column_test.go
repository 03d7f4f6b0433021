package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderColumn(t *testing.T) {
	t.Parallel()

	pg := NewColumnSQL(Postgres{}, NewNamer(63))

	cases := []struct {
		name     string
		column   Column
		suppress bool
		want     string
	}{
		{name: "not null", column: Column{Type: TypeInteger}, want: `"c" integer NOT NULL`},
		{name: "nullable", column: Column{Type: TypeText, Null: true}, want: `"c" text NULL`},
		{name: "primary key wins over unique", column: Column{Type: TypeSerial, PrimaryKey: true, Unique: true}, want: `"c" serial NOT NULL PRIMARY KEY`},
		{name: "unique", column: Column{Type: TypeVarchar, Length: 20, Unique: true}, want: `"c" varchar(20) NOT NULL UNIQUE`},
		{name: "inline tablespace", column: Column{Type: TypeInteger, Unique: true, Tablespace: "fast"}, want: `"c" integer NOT NULL UNIQUE USING INDEX TABLESPACE "fast"`},
		{name: "string default escaped", column: Column{Type: TypeText, Default: "it's"}, want: `"c" text NOT NULL DEFAULT 'it''s'`},
		{name: "bool default", column: Column{Type: TypeBoolean, Default: true}, want: `"c" boolean NOT NULL DEFAULT TRUE`},
		{name: "raw default", column: Column{Type: TypeTimestamp, Default: Raw("CURRENT_TIMESTAMP")}, want: `"c" timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP`},
		{name: "suppressed default", column: Column{Type: TypeInteger, Default: 3}, suppress: true, want: `"c" integer NOT NULL`},
		{name: "blank character default", column: Column{Type: TypeVarchar, Blank: true}, want: `"c" varchar(255) NOT NULL DEFAULT ''`},
		{name: "blank ignored for numbers", column: Column{Type: TypeInteger, Blank: true}, want: `"c" integer NOT NULL`},
		{name: "blank ignored when nullable", column: Column{Type: TypeText, Blank: true, Null: true}, want: `"c" text NULL`},
		{name: "generator returning nil", column: Column{Type: TypeText, Default: func() any { return nil }}, want: `"c" text NOT NULL`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fragment, _, ok := pg.Render("t", "c", tc.column, tc.suppress)
			require.True(t, ok)
			assert.Equal(t, tc.want, fragment)
		})
	}
}

func TestRenderCallsGeneratorOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	col := Column{Type: TypeInteger, Default: func() any { calls++; return 7 }}
	fragment, _, ok := NewColumnSQL(Postgres{}, NewNamer(63)).Render("t", "c", col, false)

	require.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.True(t, strings.HasSuffix(fragment, "DEFAULT 7"))
}

func TestRenderDefersForeignKeyAndIndex(t *testing.T) {
	t.Parallel()

	b := NewColumnSQL(Postgres{}, NewNamer(63))
	col := Column{Type: TypeInteger, Index: true, References: &Reference{Table: "authors", Column: "id"}}

	fragment, deferred, ok := b.Render("books", "author_id", col, false)
	require.True(t, ok)
	assert.NotContains(t, fragment, "REFERENCES")
	require.Len(t, deferred, 2)
	assert.Equal(t, b.ForeignKeySQL("books", "author_id", "authors", "id"), deferred[0].SQL)
	assert.Contains(t, deferred[0].SQL, "DEFERRABLE INITIALLY DEFERRED")
	assert.True(t, strings.HasPrefix(deferred[1].SQL, `CREATE INDEX "books_`), deferred[1].SQL)
}

func TestRenderInlineReferences(t *testing.T) {
	t.Parallel()

	b := NewColumnSQL(SQLite{}, NewNamer(63))
	col := Column{Type: TypeInteger, References: &Reference{Table: "authors", Column: "id"}}

	fragment, deferred, ok := b.Render("books", "author_id", col, false)
	require.True(t, ok)
	assert.Equal(t, `"author_id" integer NOT NULL REFERENCES "authors" ("id")`, fragment)
	assert.Empty(t, deferred)
}

func TestRenderGeometryOnPostgres(t *testing.T) {
	t.Parallel()

	b := NewColumnSQL(Postgres{}, NewNamer(63))
	fragment, deferred, ok := b.Render("places", "shape", Column{Type: TypeGeometry, SRID: 3857}, false)

	assert.False(t, ok)
	assert.Empty(t, fragment)
	require.Len(t, deferred, 2)
	assert.Contains(t, deferred[0].SQL, "AddGeometryColumn")
	assert.Equal(t, []any{"places", "shape", 3857}, deferred[0].Args)
	assert.Contains(t, deferred[1].SQL, "SET NOT NULL")
}

func TestForeignKeySQLIsDeterministic(t *testing.T) {
	t.Parallel()

	b := NewColumnSQL(MySQL{}, NewNamer(64))
	first := b.ForeignKeySQL("books", "author_id", "authors", "id")

	assert.Equal(t, first, b.ForeignKeySQL("books", "author_id", "authors", "id"))
	assert.True(t, strings.HasPrefix(first, "ALTER TABLE `books` ADD CONSTRAINT `author_id_refs_id_"), first)
	assert.True(t, strings.HasSuffix(first, "FOREIGN KEY (`author_id`) REFERENCES `authors` (`id`)"), first)
}

func TestLiteralPercentEscaping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "'100%'", NewColumnSQL(Postgres{}, NewNamer(63)).Literal("100%"))
	assert.Equal(t, "'100%%'", NewColumnSQL(percentDialect{Postgres{}}, NewNamer(63)).Literal("100%"))
}

type percentDialect struct {
	Postgres
}

func (d percentDialect) Features() Features {
	f := d.Postgres.Features()
	f.PercentEscapedLiterals = true
	return f
}
