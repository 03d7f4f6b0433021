package schema

import (
	"fmt"
	"strings"
)

// Type is the semantic type tag of a column. Dialects turn it into a
// concrete SQL type string.
type Type string

const (
	TypeInteger     Type = "integer"
	TypeBigInteger  Type = "bigint"
	TypeSmallInt    Type = "smallint"
	TypeSerial      Type = "serial"
	TypeBigSerial   Type = "bigserial"
	TypeVarchar     Type = "varchar"
	TypeChar        Type = "char"
	TypeText        Type = "text"
	TypeBoolean     Type = "boolean"
	TypeDate        Type = "date"
	TypeTime        Type = "time"
	TypeTimestamp   Type = "timestamp"
	TypeTimestampTZ Type = "timestamptz"
	TypeDecimal     Type = "decimal"
	TypeFloat       Type = "float"
	TypeDouble      Type = "double"
	TypeBinary      Type = "binary"
	TypeUUID        Type = "uuid"
	TypeJSON        Type = "json"
	TypeGeometry    Type = "geometry"
)

var typeAliases = map[string]Type{
	"int":              TypeInteger,
	"int4":             TypeInteger,
	"integer":          TypeInteger,
	"bigint":           TypeBigInteger,
	"int8":             TypeBigInteger,
	"smallint":         TypeSmallInt,
	"int2":             TypeSmallInt,
	"serial":           TypeSerial,
	"bigserial":        TypeBigSerial,
	"varchar":          TypeVarchar,
	"string":           TypeVarchar,
	"char":             TypeChar,
	"text":             TypeText,
	"bool":             TypeBoolean,
	"boolean":          TypeBoolean,
	"date":             TypeDate,
	"time":             TypeTime,
	"timestamp":        TypeTimestamp,
	"datetime":         TypeTimestamp,
	"timestamptz":      TypeTimestampTZ,
	"decimal":          TypeDecimal,
	"numeric":          TypeDecimal,
	"float":            TypeFloat,
	"real":             TypeFloat,
	"double":           TypeDouble,
	"double precision": TypeDouble,
	"binary":           TypeBinary,
	"bytea":            TypeBinary,
	"blob":             TypeBinary,
	"uuid":             TypeUUID,
	"json":             TypeJSON,
	"jsonb":            TypeJSON,
	"geometry":         TypeGeometry,
}

// ParseType resolves a user-facing type name (as written in plan files) to
// its semantic Type.
func ParseType(name string) (Type, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown column type %q", name)
	}
	return t, nil
}

// IsCharacter reports whether values of the type are strings, which is what
// decides whether an empty-string default makes sense.
func (t Type) IsCharacter() bool {
	switch t {
	case TypeVarchar, TypeChar, TypeText:
		return true
	}
	return false
}

// Reference is the target of a foreign key.
type Reference struct {
	Table  string
	Column string
}

// Raw is a default expression emitted verbatim, e.g. CURRENT_TIMESTAMP.
type Raw string

// Column describes the desired shape of a single column. It is a value
// object: operations take it by value and never write back to it.
type Column struct {
	Type      Type
	Length    int
	Precision int
	Scale     int
	SRID      int

	Null       bool
	PrimaryKey bool
	Unique     bool
	Index      bool
	// Blank allows an empty string default on NOT NULL character columns
	// that were given no explicit default.
	Blank bool

	// Default is nil for no default. A func() any is a generator called
	// once each time the column SQL is rendered.
	Default any

	References *Reference
	Tablespace string
}

// HasDefault reports whether a default was supplied.
func (c Column) HasDefault() bool {
	return c.Default != nil
}

// WithoutDefault returns a copy of the column with the default removed.
func (c Column) WithoutDefault() Column {
	c.Default = nil
	return c
}

// ColumnSpec pairs a column name with its description, preserving column
// order for CreateTable.
type ColumnSpec struct {
	Name   string
	Column Column
}

// ConstraintKind identifies the type of a named constraint.
type ConstraintKind string

const (
	KindUnique     ConstraintKind = "UNIQUE"
	KindCheck      ConstraintKind = "CHECK"
	KindForeignKey ConstraintKind = "FOREIGN KEY"
	KindPrimaryKey ConstraintKind = "PRIMARY KEY"
)

// ConstraintRecord is one named constraint as reported by introspection.
type ConstraintRecord struct {
	Kind    ConstraintKind
	Name    string
	Columns []string
}

// DeferredStatement is SQL queued until FlushDeferred, typically because it
// references a table that may not exist yet.
type DeferredStatement struct {
	SQL  string
	Args []any
	// Table is the table whose constraints the statement may change. Empty
	// means unknown, which invalidates every cached table.
	Table string
}

// Row is one result row returned by an Executor.
type Row []any
