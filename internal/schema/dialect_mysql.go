package schema

import (
	"context"
	"fmt"
)

// MySQL targets MySQL 8 and MariaDB. Column changes go through MODIFY, one
// change per statement.
type MySQL struct {
	MaxNameLength int
}

func (d MySQL) Name() string { return "mysql" }

func (d MySQL) Features() Features {
	return Features{
		MaxIdentifierLength: lengthOr(d.MaxNameLength, 64),
		SupportsForeignKeys: true,
		SupportsAlterColumn: true,
		SupportsCascade:     true,
	}
}

func (d MySQL) Statements() Statements {
	return Statements{
		AddColumn:        "ALTER TABLE %[1]s ADD COLUMN %[2]s",
		AlterType:        "MODIFY %[1]s %[2]s",
		SetNull:          "MODIFY %[1]s %[2]s NULL",
		DropNull:         "MODIFY %[1]s %[2]s NOT NULL",
		DropDefault:      "ALTER COLUMN %[1]s DROP DEFAULT",
		DeleteColumn:     "ALTER TABLE %[1]s DROP COLUMN %[2]s",
		RenameColumn:     "ALTER TABLE %[1]s RENAME COLUMN %[2]s TO %[3]s",
		RenameTable:      "ALTER TABLE %[1]s RENAME TO %[2]s",
		DeleteTable:      "DROP TABLE %[1]s%[2]s",
		CreateUnique:     "ALTER TABLE %[1]s ADD CONSTRAINT %[2]s UNIQUE (%[3]s)",
		DeleteUnique:     "ALTER TABLE %[1]s DROP INDEX %[2]s",
		CreatePrimaryKey: "ALTER TABLE %[1]s ADD CONSTRAINT %[2]s PRIMARY KEY (%[3]s)",
		DeletePrimaryKey: "ALTER TABLE %[1]s DROP PRIMARY KEY",
		DeleteForeignKey: "ALTER TABLE %[1]s DROP FOREIGN KEY %[2]s",
		DeleteCheck:      "ALTER TABLE %[1]s DROP CHECK %[2]s",
		CreateIndex:      "CREATE %[1]sINDEX %[2]s ON %[3]s (%[4]s)",
		DeleteIndex:      "DROP INDEX %[2]s ON %[1]s",
	}
}

func (d MySQL) QuoteName(name string) string { return quoteWith(name, "`") }

func (d MySQL) Placeholder(int) string { return "?" }

func (d MySQL) TypeFor(col Column) (string, bool) {
	switch col.Type {
	case TypeInteger:
		return "integer", true
	case TypeBigInteger:
		return "bigint", true
	case TypeSmallInt:
		return "smallint", true
	case TypeSerial:
		return "integer AUTO_INCREMENT", true
	case TypeBigSerial:
		return "bigint AUTO_INCREMENT", true
	case TypeVarchar:
		return fmt.Sprintf("varchar(%d)", lengthOr(col.Length, 255)), true
	case TypeChar:
		return fmt.Sprintf("char(%d)", lengthOr(col.Length, 1)), true
	case TypeText:
		return "longtext", true
	case TypeBoolean:
		return "bool", true
	case TypeDate:
		return "date", true
	case TypeTime:
		return "time", true
	case TypeTimestamp, TypeTimestampTZ:
		return "datetime(6)", true
	case TypeDecimal:
		return fmt.Sprintf("numeric(%d, %d)", lengthOr(col.Precision, 10), col.Scale), true
	case TypeFloat:
		return "float", true
	case TypeDouble:
		return "double precision", true
	case TypeBinary:
		return "longblob", true
	case TypeUUID:
		return "char(32)", true
	case TypeJSON:
		return "json", true
	case TypeGeometry:
		return "geometry", true
	}
	return "", false
}

func (d MySQL) DeferrableFKClause() string { return "" }

func (d MySQL) TablespaceSQL(string, bool) string { return "" }

func (d MySQL) PostCreateSQL(string, string, Column) []DeferredStatement { return nil }

const mysqlConstraintsQuery = `
	SELECT kc.column_name, c.constraint_name, c.constraint_type, kc.ordinal_position
	FROM information_schema.key_column_usage AS kc
	JOIN information_schema.table_constraints AS c
		ON kc.table_schema = c.table_schema
		AND kc.table_name = c.table_name
		AND kc.constraint_name = c.constraint_name
	WHERE kc.table_schema = ? AND kc.table_name = ?
	ORDER BY 2, 4
`

// IntrospectConstraints reads key constraints for table in database db.
// CHECK constraints are not reported.
func (d MySQL) IntrospectConstraints(ctx context.Context, exec Executor, db, table string) ([]ConstraintRecord, error) {
	rows, err := exec.Execute(ctx, mysqlConstraintsQuery, db, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	return recordsFromRows(rows), nil
}
