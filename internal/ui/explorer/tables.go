package explorer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirbelkuyu/DBDDL/internal/schema"
)

const (
	sqliteTablesQuery = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`

	postgresTablesQuery = `
		SELECT table_name FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND table_schema = $1
		ORDER BY table_name`

	mysqlTablesQuery = `
		SELECT table_name FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND table_schema = ?
		ORDER BY table_name`
)

// ListTables returns the base tables the operations session can alter.
func ListTables(ctx context.Context, ops *schema.Operations, db string) ([]string, error) {
	var (
		query string
		args  []any
	)
	switch d := ops.Dialect().(type) {
	case schema.SQLite:
		query = sqliteTablesQuery
	case schema.Postgres:
		name := d.Schema
		if name == "" {
			name = "public"
		}
		query, args = postgresTablesQuery, []any{name}
	case schema.MySQL:
		query, args = mysqlTablesQuery, []any{db}
	default:
		return nil, fmt.Errorf("table listing is not supported for %s", d.Name())
	}

	rows, err := ops.Controller().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		switch v := row[0].(type) {
		case string:
			tables = append(tables, v)
		case []byte:
			tables = append(tables, string(v))
		}
	}
	return tables, nil
}

// constraintRows flattens a column-keyed lookup into table rows of
// column, kind, name and constraint columns. A constraint spanning several
// columns is listed once, under its first column.
func constraintRows(byColumn map[string][]schema.ConstraintRecord) [][]string {
	names := make([]string, 0, len(byColumn))
	for name := range byColumn {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var out [][]string
	for _, column := range names {
		for _, rec := range byColumn[column] {
			key := string(rec.Kind) + "\x00" + rec.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, []string{column, string(rec.Kind), rec.Name, strings.Join(rec.Columns, ", ")})
		}
	}
	return out
}
