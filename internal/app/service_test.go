package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"github.com/kadirbelkuyu/DBDDL/internal/database"
	"github.com/kadirbelkuyu/DBDDL/internal/schema"
)

const libraryPlan = `
name: library
operations:
  - op: create_table
    table: authors
    columns:
      - {name: id, type: serial, primary_key: true}
      - {name: name, type: varchar, length: 100}
  - op: create_table
    table: books
    columns:
      - {name: id, type: serial, primary_key: true}
      - {name: title, type: varchar, length: 200}
      - {name: author_id, type: integer, references: {table: authors, column: id}}
  - op: create_unique
    table: books
    columns: [title, author_id]
`

func writePlan(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func sqliteConfig(path string) *config.Config {
	cfg := &config.Config{Database: config.DatabaseConfig{Type: config.TypeSQLite, Path: path}}
	cfg.ApplyDefaults()
	return cfg
}

func quietService() (*Service, *bytes.Buffer) {
	var out bytes.Buffer
	s := NewService(&out)
	s.ShowProgress = false
	return s, &out
}

func TestApplyThenInspectConstraints(t *testing.T) {
	dir := t.TempDir()
	cfg := sqliteConfig(filepath.Join(dir, "library.db"))
	ctx := context.Background()

	s, out := quietService()
	require.NoError(t, s.Apply(ctx, cfg, writePlan(t, dir, "library.yaml", libraryPlan), false, false))
	assert.Contains(t, out.String(), "Plan applied successfully!")

	out.Reset()
	require.NoError(t, s.Constraints(ctx, cfg, "books", ""))

	report := out.String()
	assert.Contains(t, report, "Constraints on books (sqlite)")
	assert.Contains(t, report, "PRIMARY KEY books_pkey (id)")
	assert.Contains(t, report, "FOREIGN KEY fk_0 (author_id)")
	assert.Contains(t, report, "UNIQUE")
	assert.Contains(t, report, "Total constraints: 4")

	out.Reset()
	require.NoError(t, s.Constraints(ctx, cfg, "books", "author_id"))
	assert.Contains(t, out.String(), "Total constraints: 2")
}

func TestApplyDryRunPrintsStatements(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "preview.db")
	cfg := sqliteConfig(dbPath)
	ctx := context.Background()

	s, out := quietService()
	require.NoError(t, s.Apply(ctx, cfg, writePlan(t, dir, "library.yaml", libraryPlan), true, false))

	preview := out.String()
	assert.Contains(t, preview, `CREATE TABLE "authors"`)
	assert.Contains(t, preview, `CREATE UNIQUE INDEX`)
	assert.NotContains(t, preview, "Plan applied successfully!")

	conn, err := database.NewConnection(ctx, cfg)
	require.NoError(t, err)
	defer conn.Close()

	count, err := conn.FetchScalar(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestApplyReportsFailingPlan(t *testing.T) {
	dir := t.TempDir()
	cfg := sqliteConfig(filepath.Join(dir, "broken.db"))

	s, _ := quietService()
	err := s.Apply(context.Background(), cfg, writePlan(t, dir, "broken.yaml", `
name: broken
operations:
  - op: delete_table
    table: missing
`), false, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan broken failed")
	assert.Contains(t, err.Error(), "operation 1 (delete_table missing)")
}

func TestApplyParallelDryRun(t *testing.T) {
	dir := t.TempDir()
	cfg := sqliteConfig("")
	first := writePlan(t, dir, "a.yaml", "name: a\noperations:\n  - op: create_table\n    table: a\n    columns: [{name: id, type: serial, primary_key: true}]\n")
	second := writePlan(t, dir, "b.yaml", "name: b\noperations:\n  - op: create_table\n    table: b\n    columns: [{name: id, type: serial, primary_key: true}]\n")

	s, out := quietService()
	require.NoError(t, s.ApplyParallel(context.Background(), cfg, []string{first, second}, 2, true, false))

	preview := out.String()
	assert.Contains(t, preview, "-- a\n")
	assert.Contains(t, preview, "-- b\n")
	assert.Contains(t, preview, `CREATE TABLE "a"`)
	assert.Contains(t, preview, `CREATE TABLE "b"`)
	assert.Contains(t, preview, "All plans applied successfully!")
}

func TestApplyParallelStopsOnMissingPlan(t *testing.T) {
	s, _ := quietService()
	err := s.ApplyParallel(context.Background(), sqliteConfig(""), []string{filepath.Join(t.TempDir(), "nope.yaml")}, 0, false, false)
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	cfg := sqliteConfig("")

	s, out := quietService()
	name, err := s.Name(cfg, "books", []string{"title", "author_id"}, "_uniq")
	require.NoError(t, err)
	assert.Equal(t, schema.NewNamer(schema.DefaultMaxIdentifierLength).IndexName("books", []string{"title", "author_id"}, "_uniq"), name)
	assert.Equal(t, name+"\n", out.String())

	fk, err := s.Name(cfg, "books", []string{"author_id", "authors", "id"}, "fk")
	require.NoError(t, err)
	assert.Equal(t, schema.NewNamer(schema.DefaultMaxIdentifierLength).ForeignKeyName("books", "author_id", "authors", "id"), fk)

	_, err = s.Name(cfg, "books", []string{"author_id"}, "fk")
	assert.Error(t, err)
	_, err = s.Name(cfg, "books", nil, "")
	assert.Error(t, err)
}
