package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnSQL renders column fragments and the statements that must follow
// them for one dialect.
type ColumnSQL struct {
	dialect Dialect
	namer   Namer
}

func NewColumnSQL(d Dialect, namer Namer) *ColumnSQL {
	return &ColumnSQL{dialect: d, namer: namer}
}

// Render returns the inline definition of column name, the statements to
// run once the table exists, and whether there is an inline definition at
// all. A column without one (e.g. PostGIS geometry) is created entirely by
// its deferred statements.
func (b *ColumnSQL) Render(table, name string, col Column, suppressDefault bool) (string, []DeferredStatement, bool) {
	features := b.dialect.Features()
	var deferred []DeferredStatement

	typ, ok := b.dialect.TypeFor(col)
	fragment := ""
	if ok {
		parts := []string{b.dialect.QuoteName(name), typ}
		if col.Null {
			parts = append(parts, "NULL")
		} else {
			parts = append(parts, "NOT NULL")
		}

		if col.PrimaryKey {
			parts = append(parts, "PRIMARY KEY")
		} else if col.Unique {
			parts = append(parts, "UNIQUE")
		}

		if col.Tablespace != "" && features.SupportsInlineTablespaces && (col.PrimaryKey || col.Unique) {
			parts = append(parts, b.dialect.TablespaceSQL(col.Tablespace, true))
		}

		if !suppressDefault {
			if value, has := resolveDefault(col); has {
				parts = append(parts, "DEFAULT "+b.Literal(value))
			} else if !col.Null && col.Blank && col.Type.IsCharacter() {
				parts = append(parts, "DEFAULT ''")
			}
		}
		if col.References != nil && features.InlineReferences {
			parts = append(parts, fmt.Sprintf("REFERENCES %s (%s)",
				b.dialect.QuoteName(col.References.Table), b.dialect.QuoteName(col.References.Column)))
		}
		fragment = strings.Join(parts, " ")

		if col.References != nil && features.SupportsForeignKeys {
			deferred = append(deferred, DeferredStatement{
				SQL:   b.ForeignKeySQL(table, name, col.References.Table, col.References.Column),
				Table: table,
			})
		}
	}

	deferred = append(deferred, b.dialect.PostCreateSQL(table, name, col)...)

	if col.Index && !col.Unique && !col.PrimaryKey {
		deferred = append(deferred, DeferredStatement{
			SQL:   b.CreateIndexSQL(table, []string{name}, false, col.Tablespace),
			Table: table,
		})
	}

	return fragment, deferred, ok
}

// ForeignKeySQL returns the statement adding a foreign key from
// fromTable.fromColumn to toTable.toColumn. The constraint name is a pure
// function of its arguments.
func (b *ColumnSQL) ForeignKeySQL(fromTable, fromColumn, toTable, toColumn string) string {
	name := b.namer.ForeignKeyName(fromTable, fromColumn, toTable, toColumn)
	q := b.dialect.QuoteName
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
		q(fromTable), q(name), q(fromColumn), q(toTable), q(toColumn), b.dialect.DeferrableFKClause())
}

// CreateIndexSQL returns the CREATE INDEX statement for columns of table.
func (b *ColumnSQL) CreateIndexSQL(table string, columns []string, unique bool, tablespace string) string {
	keyword := ""
	if unique {
		keyword = "UNIQUE "
	}
	ts := b.dialect.TablespaceSQL(tablespace, false)
	if ts != "" {
		ts = " " + ts
	}
	name := b.namer.IndexName(table, columns, "")
	return fmt.Sprintf(b.dialect.Statements().CreateIndex,
		keyword, b.dialect.QuoteName(name), b.dialect.QuoteName(table), quoteList(b.dialect, columns), ts)
}

// Literal renders a default value as a SQL literal.
func (b *ColumnSQL) Literal(value any) string {
	switch v := value.(type) {
	case Raw:
		return string(v)
	case string:
		return b.quoteString(v)
	case []byte:
		return b.quoteString(string(v))
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return b.quoteString(v.Format("2006-01-02 15:04:05.999999"))
	default:
		return b.quoteString(fmt.Sprint(v))
	}
}

func (b *ColumnSQL) quoteString(s string) string {
	s = "'" + strings.ReplaceAll(s, "'", "''") + "'"
	if b.dialect.Features().PercentEscapedLiterals {
		s = strings.ReplaceAll(s, "%", "%%")
	}
	return s
}

// resolveDefault returns the column default, calling it if it is a
// generator. A generator that yields nil counts as no default.
func resolveDefault(col Column) (any, bool) {
	value := col.Default
	if gen, ok := value.(func() any); ok {
		value = gen()
	}
	if value == nil {
		return nil, false
	}
	return value, true
}
