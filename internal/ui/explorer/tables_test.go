package explorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"github.com/kadirbelkuyu/DBDDL/internal/database"
	"github.com/kadirbelkuyu/DBDDL/internal/schema"
	"github.com/kadirbelkuyu/DBDDL/pkg/logger"
)

func TestConstraintRowsListsSharedConstraintOnce(t *testing.T) {
	unique := schema.ConstraintRecord{Kind: schema.KindUnique, Name: "people_first_uniq", Columns: []string{"first", "last"}}
	rows := constraintRows(map[string][]schema.ConstraintRecord{
		"last":  {unique},
		"first": {unique},
		"id":    {{Kind: schema.KindPrimaryKey, Name: "people_pkey", Columns: []string{"id"}}},
	})

	assert.Equal(t, [][]string{
		{"first", "UNIQUE", "people_first_uniq", "first, last"},
		{"id", "PRIMARY KEY", "people_pkey", "id"},
	}, rows)
}

func TestConstraintRowsEmpty(t *testing.T) {
	assert.Empty(t, constraintRows(nil))
}

func TestListTablesSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Database: config.DatabaseConfig{Type: config.TypeSQLite}}
	cfg.ApplyDefaults()

	conn, err := database.NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	dialect := schema.SQLite{}
	ctrl := schema.NewController(conn, logger.Discard(), false)
	ops := schema.NewOperations(ctrl, dialect, schema.NewConstraintCache(schema.IntrospectWith(dialect, conn)), conn.GetDatabaseName())

	require.NoError(t, ops.ExecuteMany(ctx, `
		CREATE TABLE shelves (id integer PRIMARY KEY);
		CREATE TABLE books (id integer PRIMARY KEY, shelf_id integer REFERENCES shelves (id));`))

	tables, err := ListTables(ctx, ops, conn.GetDatabaseName())
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "shelves"}, tables)

	byColumn, err := ops.Cache().Lookup(ctx, conn.GetDatabaseName(), "books")
	require.NoError(t, err)
	rows := constraintRows(byColumn)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, []string{"shelf_id", "FOREIGN KEY"}, rows[1][:2])
}
