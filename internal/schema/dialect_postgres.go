package schema

import (
	"context"
	"fmt"
	"strconv"
)

// Postgres targets PostgreSQL. Schema scopes introspection and defaults to
// public.
type Postgres struct {
	Schema        string
	MaxNameLength int
}

func (d Postgres) Name() string { return "postgres" }

func (d Postgres) Features() Features {
	return Features{
		MaxIdentifierLength:       lengthOr(d.MaxNameLength, 63),
		AllowsCombinedAlters:      true,
		SupportsInlineTablespaces: true,
		SupportsForeignKeys:       true,
		HasCheckConstraints:       true,
		SupportsAlterColumn:       true,
		SupportsCascade:           true,
	}
}

func (d Postgres) Statements() Statements {
	return Statements{
		AddColumn:        "ALTER TABLE %[1]s ADD COLUMN %[2]s",
		AlterType:        "ALTER COLUMN %[1]s TYPE %[2]s",
		SetNull:          "ALTER COLUMN %[1]s DROP NOT NULL",
		DropNull:         "ALTER COLUMN %[1]s SET NOT NULL",
		DropDefault:      "ALTER COLUMN %[1]s DROP DEFAULT",
		DeleteColumn:     "ALTER TABLE %[1]s DROP COLUMN %[2]s CASCADE",
		RenameColumn:     "ALTER TABLE %[1]s RENAME COLUMN %[2]s TO %[3]s",
		RenameTable:      "ALTER TABLE %[1]s RENAME TO %[2]s",
		DeleteTable:      "DROP TABLE %[1]s%[2]s",
		CreateUnique:     "ALTER TABLE %[1]s ADD CONSTRAINT %[2]s UNIQUE (%[3]s)",
		DeleteUnique:     "ALTER TABLE %[1]s DROP CONSTRAINT %[2]s",
		CreatePrimaryKey: "ALTER TABLE %[1]s ADD CONSTRAINT %[2]s PRIMARY KEY (%[3]s)",
		DeletePrimaryKey: "ALTER TABLE %[1]s DROP CONSTRAINT %[2]s",
		DeleteForeignKey: "ALTER TABLE %[1]s DROP CONSTRAINT %[2]s",
		DeleteCheck:      "ALTER TABLE %[1]s DROP CONSTRAINT %[2]s",
		CreateIndex:      "CREATE %[1]sINDEX %[2]s ON %[3]s (%[4]s)%[5]s",
		DeleteIndex:      "DROP INDEX %[2]s",
	}
}

func (d Postgres) QuoteName(name string) string { return quoteWith(name, `"`) }

func (d Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d Postgres) TypeFor(col Column) (string, bool) {
	switch col.Type {
	case TypeInteger:
		return "integer", true
	case TypeBigInteger:
		return "bigint", true
	case TypeSmallInt:
		return "smallint", true
	case TypeSerial:
		return "serial", true
	case TypeBigSerial:
		return "bigserial", true
	case TypeVarchar:
		return fmt.Sprintf("varchar(%d)", lengthOr(col.Length, 255)), true
	case TypeChar:
		return fmt.Sprintf("char(%d)", lengthOr(col.Length, 1)), true
	case TypeText:
		return "text", true
	case TypeBoolean:
		return "boolean", true
	case TypeDate:
		return "date", true
	case TypeTime:
		return "time", true
	case TypeTimestamp:
		return "timestamp", true
	case TypeTimestampTZ:
		return "timestamp with time zone", true
	case TypeDecimal:
		return fmt.Sprintf("numeric(%d, %d)", lengthOr(col.Precision, 10), col.Scale), true
	case TypeFloat:
		return "real", true
	case TypeDouble:
		return "double precision", true
	case TypeBinary:
		return "bytea", true
	case TypeUUID:
		return "uuid", true
	case TypeJSON:
		return "jsonb", true
	}
	return "", false
}

func (d Postgres) DeferrableFKClause() string { return " DEFERRABLE INITIALLY DEFERRED" }

func (d Postgres) TablespaceSQL(tablespace string, inline bool) string {
	if tablespace == "" {
		return ""
	}
	if inline {
		return "USING INDEX TABLESPACE " + d.QuoteName(tablespace)
	}
	return "TABLESPACE " + d.QuoteName(tablespace)
}

// PostCreateSQL registers geometry columns through PostGIS, which owns
// their type and constraints.
func (d Postgres) PostCreateSQL(table, column string, col Column) []DeferredStatement {
	if col.Type != TypeGeometry {
		return nil
	}
	stmts := []DeferredStatement{{
		SQL:   "SELECT AddGeometryColumn($1, $2, $3, 'GEOMETRY', 2)",
		Args:  []any{table, column, lengthOr(col.SRID, 4326)},
		Table: table,
	}}
	if !col.Null {
		stmts = append(stmts, DeferredStatement{
			SQL:   fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", d.QuoteName(table), d.QuoteName(column)),
			Table: table,
		})
	}
	return stmts
}

const postgresConstraintsQuery = `
	SELECT kc.column_name, c.constraint_name, c.constraint_type, kc.ordinal_position
	FROM information_schema.key_column_usage AS kc
	JOIN information_schema.table_constraints AS c
		ON kc.table_schema = c.table_schema
		AND kc.table_name = c.table_name
		AND kc.constraint_name = c.constraint_name
	WHERE kc.table_schema = $1 AND kc.table_name = $2
	UNION ALL
	SELECT cc.column_name, c.constraint_name, c.constraint_type, 0
	FROM information_schema.constraint_column_usage AS cc
	JOIN information_schema.table_constraints AS c
		ON cc.table_schema = c.table_schema
		AND cc.table_name = c.table_name
		AND cc.constraint_name = c.constraint_name
	WHERE c.constraint_type = 'CHECK' AND cc.table_schema = $1 AND cc.table_name = $2
	ORDER BY 2, 4, 1
`

func (d Postgres) IntrospectConstraints(ctx context.Context, exec Executor, db, table string) ([]ConstraintRecord, error) {
	schemaName := d.Schema
	if schemaName == "" {
		schemaName = "public"
	}
	rows, err := exec.Execute(ctx, postgresConstraintsQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	return recordsFromRows(rows), nil
}
