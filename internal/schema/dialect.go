package schema

import (
	"context"
	"fmt"
	"strings"
)

// Executor runs SQL against a live database. Statements that return rows
// (SELECT, PRAGMA, WITH, SHOW) yield them; everything else yields nil.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) ([]Row, error)
	FetchScalar(ctx context.Context, query string, args ...any) (any, error)
}

// Transactor is implemented by executors that can open nested transactions.
type Transactor interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Features are the capability knobs that make operations branch per dialect.
type Features struct {
	MaxIdentifierLength       int
	AllowsCombinedAlters      bool
	SupportsInlineTablespaces bool
	SupportsForeignKeys       bool
	// InlineReferences declares foreign keys inside the column definition,
	// for engines that cannot add them later.
	InlineReferences    bool
	HasCheckConstraints bool
	// SupportsAlterColumn is false when column changes need a table rebuild.
	SupportsAlterColumn bool
	SupportsCascade     bool
	// PercentEscapedLiterals doubles % in string literals for drivers whose
	// parameter layer is printf-style.
	PercentEscapedLiterals bool
}

// Statements holds the SQL templates of a dialect. Templates use indexed
// verbs so each one can pick the arguments it needs:
//
//	AddColumn, DeleteColumn:       %[1]s table, %[2]s column or fragment
//	AlterType, SetNull, DropNull:  %[1]s column, %[2]s type
//	DropDefault:                   %[1]s column
//	RenameColumn:                  %[1]s table, %[2]s old, %[3]s new
//	RenameTable:                   %[1]s old, %[2]s new
//	DeleteTable:                   %[1]s table, %[2]s cascade clause
//	CreateUnique, CreatePrimaryKey: %[1]s table, %[2]s name, %[3]s columns
//	Delete{Unique,PrimaryKey,ForeignKey,Check}: %[1]s table, %[2]s name
//	CreateIndex:                   %[1]s UNIQUE keyword, %[2]s name, %[3]s table, %[4]s columns, %[5]s tablespace
//	DeleteIndex:                   %[1]s table, %[2]s name
//
// An empty template means the dialect cannot perform the operation.
type Statements struct {
	AddColumn        string
	AlterType        string
	SetNull          string
	DropNull         string
	DropDefault      string
	DeleteColumn     string
	RenameColumn     string
	RenameTable      string
	DeleteTable      string
	CreateUnique     string
	DeleteUnique     string
	CreatePrimaryKey string
	DeletePrimaryKey string
	DeleteForeignKey string
	DeleteCheck      string
	CreateIndex      string
	DeleteIndex      string
}

// Dialect isolates everything that differs between database engines.
type Dialect interface {
	Name() string
	Features() Features
	Statements() Statements
	QuoteName(name string) string
	Placeholder(n int) string
	// TypeFor returns the SQL type for a column, or false when the column
	// has no inline type (it is created by a post-create statement instead).
	TypeFor(col Column) (string, bool)
	DeferrableFKClause() string
	TablespaceSQL(tablespace string, inline bool) string
	PostCreateSQL(table, column string, col Column) []DeferredStatement
	IntrospectConstraints(ctx context.Context, exec Executor, db, table string) ([]ConstraintRecord, error)
}

// NewDialect returns the built-in dialect for kind. The Postgres schema
// defaults to public; maxIdentifierLength of zero keeps the engine limit.
func NewDialect(kind, pgSchema string, maxIdentifierLength int) (Dialect, error) {
	switch strings.ToLower(kind) {
	case "postgres", "postgresql", "pg":
		return Postgres{Schema: pgSchema, MaxNameLength: maxIdentifierLength}, nil
	case "mysql", "mariadb":
		return MySQL{MaxNameLength: maxIdentifierLength}, nil
	case "sqlite", "sqlite3":
		return SQLite{MaxNameLength: maxIdentifierLength}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", kind)
	}
}

func quoteWith(name, quote string) string {
	if strings.HasPrefix(name, quote) {
		return name
	}
	return quote + strings.ReplaceAll(name, quote, quote+quote) + quote
}

func quoteList(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteName(name)
	}
	return strings.Join(quoted, ", ")
}

func lengthOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
