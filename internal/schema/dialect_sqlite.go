package schema

import (
	"context"
	"fmt"
)

// SQLite targets SQLite 3.35+. It cannot alter a column in place, so column
// changes rebuild the table, and foreign keys exist only inline.
type SQLite struct {
	MaxNameLength int
}

func (d SQLite) Name() string { return "sqlite" }

func (d SQLite) Features() Features {
	return Features{
		MaxIdentifierLength: lengthOr(d.MaxNameLength, DefaultMaxIdentifierLength),
		InlineReferences:    true,
	}
}

func (d SQLite) Statements() Statements {
	return Statements{
		AddColumn:    "ALTER TABLE %[1]s ADD COLUMN %[2]s",
		DeleteColumn: "ALTER TABLE %[1]s DROP COLUMN %[2]s",
		RenameColumn: "ALTER TABLE %[1]s RENAME COLUMN %[2]s TO %[3]s",
		RenameTable:  "ALTER TABLE %[1]s RENAME TO %[2]s",
		DeleteTable:  "DROP TABLE %[1]s",
		CreateUnique: "CREATE UNIQUE INDEX %[2]s ON %[1]s (%[3]s)",
		DeleteUnique: "DROP INDEX %[2]s",
		CreateIndex:  "CREATE %[1]sINDEX %[2]s ON %[3]s (%[4]s)",
		DeleteIndex:  "DROP INDEX %[2]s",
	}
}

func (d SQLite) QuoteName(name string) string { return quoteWith(name, `"`) }

func (d SQLite) Placeholder(int) string { return "?" }

func (d SQLite) TypeFor(col Column) (string, bool) {
	switch col.Type {
	case TypeInteger, TypeSerial:
		return "integer", true
	case TypeBigInteger, TypeBigSerial:
		return "bigint", true
	case TypeSmallInt:
		return "smallint", true
	case TypeVarchar:
		return fmt.Sprintf("varchar(%d)", lengthOr(col.Length, 255)), true
	case TypeChar:
		return fmt.Sprintf("char(%d)", lengthOr(col.Length, 1)), true
	case TypeText, TypeJSON:
		return "text", true
	case TypeBoolean:
		return "bool", true
	case TypeDate:
		return "date", true
	case TypeTime:
		return "time", true
	case TypeTimestamp, TypeTimestampTZ:
		return "datetime", true
	case TypeDecimal:
		return fmt.Sprintf("decimal(%d, %d)", lengthOr(col.Precision, 10), col.Scale), true
	case TypeFloat, TypeDouble:
		return "real", true
	case TypeBinary:
		return "blob", true
	case TypeUUID:
		return "char(32)", true
	}
	return "", false
}

func (d SQLite) DeferrableFKClause() string { return "" }

func (d SQLite) TablespaceSQL(string, bool) string { return "" }

func (d SQLite) PostCreateSQL(string, string, Column) []DeferredStatement { return nil }

// Unique indexes count as UNIQUE constraints, except the implicit one
// backing a non-rowid primary key, which table_info already reports.
const sqliteConstraintsQuery = `
	SELECT ii.name, il.name, 'UNIQUE', ii.seqno
	FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
	WHERE il."unique" = 1 AND il.origin <> 'pk'
	UNION ALL
	SELECT name, ? || '_pkey', 'PRIMARY KEY', pk
	FROM pragma_table_info(?)
	WHERE pk > 0
	UNION ALL
	SELECT "from", 'fk_' || id, 'FOREIGN KEY', seq
	FROM pragma_foreign_key_list(?)
	ORDER BY 2, 4
`

func (d SQLite) IntrospectConstraints(ctx context.Context, exec Executor, _ string, table string) ([]ConstraintRecord, error) {
	rows, err := exec.Execute(ctx, sqliteConstraintsQuery, table, table, table, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	return recordsFromRows(rows), nil
}
