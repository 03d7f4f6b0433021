package plan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"github.com/kadirbelkuyu/DBDDL/internal/database"
	"github.com/kadirbelkuyu/DBDDL/internal/schema"
	"github.com/kadirbelkuyu/DBDDL/pkg/logger"
)

func newSQLiteOperations(t *testing.T, dryRun bool) (*schema.Operations, *database.Connection) {
	t.Helper()

	cfg := &config.Config{Database: config.DatabaseConfig{Type: config.TypeSQLite}}
	cfg.ApplyDefaults()

	conn, err := database.NewConnection(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	dialect := schema.SQLite{}
	ctrl := schema.NewController(conn, logger.Discard(), dryRun)
	cache := schema.NewConstraintCache(schema.IntrospectWith(dialect, conn))
	return schema.NewOperations(ctrl, dialect, cache, conn.GetDatabaseName()), conn
}

func TestParsePlan(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "library.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "library", p.Name)
	require.Len(t, p.Operations, 5)

	books := p.Operations[1]
	assert.Equal(t, OpCreateTable, books.Op)
	require.Len(t, books.Columns, 3)
	assert.Equal(t, "books", books.Table)
	assert.True(t, books.Columns[1].Index)
	require.NotNil(t, books.Columns[2].References)
	assert.Equal(t, "authors", books.Columns[2].References.Table)

	unique := p.Operations[4]
	assert.Equal(t, []string{"title", "author_id"}, unique.ColumnNames())
	assert.Equal(t, "create_unique books (title, author_id)", unique.String())

	add := p.Operations[3]
	require.NotNil(t, add.Definition)
	assert.Equal(t, 0, add.Definition.Default)
}

func TestColumnDefConversion(t *testing.T) {
	def := ColumnDef{
		Name:       "created_at",
		Type:       "datetime",
		DefaultSQL: "CURRENT_TIMESTAMP",
		References: &Reference{Table: "users", Column: "id"},
	}

	col, err := def.Column()
	require.NoError(t, err)
	assert.Equal(t, schema.TypeTimestamp, col.Type)
	assert.Equal(t, schema.Raw("CURRENT_TIMESTAMP"), col.Default)
	assert.Equal(t, &schema.Reference{Table: "users", Column: "id"}, col.References)

	def.Default = "now"
	_, err = def.Column()
	assert.Error(t, err, "default and default_sql are exclusive")

	_, err = ColumnDef{Name: "x", Type: "hyperloglog"}.Column()
	assert.Error(t, err)
}

func TestParseRejectsInvalidOperations(t *testing.T) {
	cases := map[string]string{
		"unknown op":       "operations:\n  - op: drop_everything\n    table: t\n",
		"missing table":    "operations:\n  - op: clear_table\n",
		"missing columns":  "operations:\n  - op: create_index\n    table: t\n",
		"missing new name": "operations:\n  - op: rename_column\n    table: t\n    column: c\n",
		"empty plan":       "name: nothing\n",
		"missing sql":      "operations:\n  - op: execute\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Errorf(t, err, "%s should be rejected", name)
	}
}

func TestApplyOnSQLite(t *testing.T) {
	ops, conn := newSQLiteOperations(t, false)
	ctx := context.Background()

	p, err := Load(filepath.Join("testdata", "library.yaml"))
	require.NoError(t, err)

	var steps []string
	require.NoError(t, Apply(ctx, ops, p, func(op Operation) { steps = append(steps, op.Op) }))
	assert.Len(t, steps, 5)

	title, err := conn.FetchScalar(ctx, `SELECT title FROM books WHERE id = 1`)
	require.NoError(t, err)
	assert.Equal(t, "Notes; on engines", title)

	pages, err := conn.FetchScalar(ctx, `SELECT pages FROM books WHERE id = 1`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pages)

	titleIndex := ops.Namer().IndexName("books", []string{"title"}, "")
	count, err := conn.FetchScalar(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, titleIndex)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "deferred index is created at flush")

	assert.False(t, ops.Controller().State().Active)
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	ops, conn := newSQLiteOperations(t, false)
	ctx := context.Background()

	p, err := Load(filepath.Join("testdata", "broken.yaml"))
	require.NoError(t, err)

	err = Apply(ctx, ops, p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation 2 (execute)")

	var execErr *schema.ExecutionError
	assert.ErrorAs(t, err, &execErr)

	count, err := conn.FetchScalar(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'widgets'`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.False(t, ops.Controller().State().Active)
	assert.Empty(t, ops.Controller().Deferred())
}

func TestApplyDryRunRecordsStatements(t *testing.T) {
	ops, conn := newSQLiteOperations(t, true)
	ctx := context.Background()

	p, err := Parse([]byte(`
name: preview
operations:
  - op: create_table
    table: tags
    columns:
      - {name: id, type: serial, primary_key: true}
      - {name: label, type: varchar, length: 40, index: true}
  - op: rename_table
    table: tags
    new_name: labels
`))
	require.NoError(t, err)

	require.NoError(t, Apply(ctx, ops, p, nil))

	statements := ops.Controller().Statements()
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0].SQL, `CREATE TABLE "tags"`)
	assert.Contains(t, statements[1].SQL, `RENAME TO "labels"`)
	assert.Contains(t, statements[2].SQL, "CREATE INDEX")

	count, err := conn.FetchScalar(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name IN ('tags', 'labels')`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Zero(t, ops.Controller().State().PendingDepth)
}
