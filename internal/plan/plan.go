package plan

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/DBDDL/internal/schema"
)

const (
	OpCreateTable      = "create_table"
	OpDeleteTable      = "delete_table"
	OpRenameTable      = "rename_table"
	OpClearTable       = "clear_table"
	OpAddColumn        = "add_column"
	OpAlterColumn      = "alter_column"
	OpDeleteColumn     = "delete_column"
	OpRenameColumn     = "rename_column"
	OpCreateUnique     = "create_unique"
	OpDeleteUnique     = "delete_unique"
	OpCreateIndex      = "create_index"
	OpDeleteIndex      = "delete_index"
	OpCreatePrimaryKey = "create_primary_key"
	OpDeletePrimaryKey = "delete_primary_key"
	OpCreateForeignKey = "create_foreign_key"
	OpDeleteForeignKey = "delete_foreign_key"
	OpExecute          = "execute"
)

type Reference struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

// ColumnDef is a column as written in a plan file. In column lists a bare
// string is shorthand for a definition with only a name.
type ColumnDef struct {
	Name       string     `yaml:"name"`
	Type       string     `yaml:"type"`
	Length     int        `yaml:"length"`
	Precision  int        `yaml:"precision"`
	Scale      int        `yaml:"scale"`
	SRID       int        `yaml:"srid"`
	Null       bool       `yaml:"null"`
	PrimaryKey bool       `yaml:"primary_key"`
	Unique     bool       `yaml:"unique"`
	Index      bool       `yaml:"index"`
	Blank      bool       `yaml:"blank"`
	Default    any        `yaml:"default"`
	DefaultSQL string     `yaml:"default_sql"`
	References *Reference `yaml:"references"`
	Tablespace string     `yaml:"tablespace"`
}

func (c *ColumnDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain ColumnDef
	return node.Decode((*plain)(c))
}

// Column converts the definition to the engine's column description.
func (c ColumnDef) Column() (schema.Column, error) {
	typ, err := schema.ParseType(c.Type)
	if err != nil {
		return schema.Column{}, err
	}

	col := schema.Column{
		Type:       typ,
		Length:     c.Length,
		Precision:  c.Precision,
		Scale:      c.Scale,
		SRID:       c.SRID,
		Null:       c.Null,
		PrimaryKey: c.PrimaryKey,
		Unique:     c.Unique,
		Index:      c.Index,
		Blank:      c.Blank,
		Default:    c.Default,
		Tablespace: c.Tablespace,
	}
	if c.DefaultSQL != "" {
		if c.Default != nil {
			return schema.Column{}, fmt.Errorf("column %s sets both default and default_sql", c.Name)
		}
		col.Default = schema.Raw(c.DefaultSQL)
	}
	if c.References != nil {
		col.References = &schema.Reference{Table: c.References.Table, Column: c.References.Column}
	}
	return col, nil
}

type Operation struct {
	Op         string      `yaml:"op"`
	Table      string      `yaml:"table"`
	NewName    string      `yaml:"new_name"`
	Column     string      `yaml:"column"`
	Columns    []ColumnDef `yaml:"columns"`
	Definition *ColumnDef  `yaml:"definition"`
	Unique     bool        `yaml:"unique"`
	Tablespace string      `yaml:"tablespace"`
	Cascade    bool        `yaml:"cascade"`
	ToTable    string      `yaml:"to_table"`
	ToColumn   string      `yaml:"to_column"`
	SQL        string      `yaml:"sql"`
}

// ColumnNames returns the names listed under columns.
func (o Operation) ColumnNames() []string {
	names := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		names[i] = c.Name
	}
	return names
}

func (o Operation) String() string {
	switch {
	case o.Op == OpExecute:
		return o.Op
	case o.Column != "":
		return fmt.Sprintf("%s %s.%s", o.Op, o.Table, o.Column)
	case len(o.Columns) > 0 && o.Op != OpCreateTable:
		return fmt.Sprintf("%s %s (%s)", o.Op, o.Table, strings.Join(o.ColumnNames(), ", "))
	default:
		return fmt.Sprintf("%s %s", o.Op, o.Table)
	}
}

// Validate checks that the fields the operation needs are present.
func (o Operation) Validate() error {
	var missing []string
	need := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	if o.Op != OpExecute {
		need(o.Table != "", "table")
	}

	switch o.Op {
	case OpCreateTable, OpCreateUnique, OpDeleteUnique, OpCreateIndex, OpDeleteIndex, OpCreatePrimaryKey:
		need(len(o.Columns) > 0, "columns")
	case OpRenameTable:
		need(o.NewName != "", "new_name")
	case OpAddColumn, OpAlterColumn:
		need(o.Column != "", "column")
		need(o.Definition != nil, "definition")
	case OpDeleteColumn, OpDeleteForeignKey:
		need(o.Column != "", "column")
	case OpRenameColumn:
		need(o.Column != "", "column")
		need(o.NewName != "", "new_name")
	case OpCreateForeignKey:
		need(o.Column != "", "column")
		need(o.ToTable != "", "to_table")
		need(o.ToColumn != "", "to_column")
	case OpExecute:
		need(strings.TrimSpace(o.SQL) != "", "sql")
	case OpDeleteTable, OpClearTable, OpDeletePrimaryKey:
	default:
		return fmt.Errorf("unknown operation %q", o.Op)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s: missing %s", o.Op, strings.Join(missing, ", "))
	}
	return nil
}

// Plan is an ordered batch of schema operations applied as one unit.
type Plan struct {
	Name       string      `yaml:"name"`
	Operations []Operation `yaml:"operations"`
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(p.Operations) == 0 {
		return nil, fmt.Errorf("plan %q has no operations", p.Name)
	}
	for i, op := range p.Operations {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i+1, err)
		}
	}
	return &p, nil
}

// Apply runs every operation of p inside one transaction. Deferred SQL is
// flushed before the commit; any failure clears it and rolls back. onStep,
// if set, is called after each successful operation.
func Apply(ctx context.Context, ops *schema.Operations, p *Plan, onStep func(Operation)) error {
	ctrl := ops.Controller()
	if err := ctrl.StartTransaction(ctx); err != nil {
		return err
	}

	fail := func(err error) error {
		ctrl.ClearDeferred()
		ops.Cache().InvalidateAll()
		if rbErr := ctrl.RollbackTransaction(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	for i, op := range p.Operations {
		if err := applyOperation(ctx, ops, op); err != nil {
			return fail(fmt.Errorf("operation %d (%s) failed: %w", i+1, op, err))
		}
		if onStep != nil {
			onStep(op)
		}
	}

	if err := ops.FlushDeferred(ctx); err != nil {
		return fail(fmt.Errorf("failed to run deferred statements: %w", err))
	}
	return ctrl.CommitTransaction(ctx)
}

func applyOperation(ctx context.Context, ops *schema.Operations, op Operation) error {
	switch op.Op {
	case OpCreateTable:
		specs := make([]schema.ColumnSpec, 0, len(op.Columns))
		for _, def := range op.Columns {
			col, err := def.Column()
			if err != nil {
				return fmt.Errorf("column %s: %w", def.Name, err)
			}
			specs = append(specs, schema.ColumnSpec{Name: def.Name, Column: col})
		}
		return ops.CreateTable(ctx, op.Table, specs)
	case OpDeleteTable:
		return ops.DeleteTable(ctx, op.Table, op.Cascade)
	case OpRenameTable:
		return ops.RenameTable(ctx, op.Table, op.NewName)
	case OpClearTable:
		return ops.ClearTable(ctx, op.Table)
	case OpAddColumn, OpAlterColumn:
		col, err := op.Definition.Column()
		if err != nil {
			return fmt.Errorf("column %s: %w", op.Column, err)
		}
		if op.Op == OpAddColumn {
			return ops.AddColumn(ctx, op.Table, op.Column, col)
		}
		return ops.AlterColumn(ctx, op.Table, op.Column, col)
	case OpDeleteColumn:
		return ops.DeleteColumn(ctx, op.Table, op.Column)
	case OpRenameColumn:
		return ops.RenameColumn(ctx, op.Table, op.Column, op.NewName)
	case OpCreateUnique:
		_, err := ops.CreateUnique(ctx, op.Table, op.ColumnNames())
		return err
	case OpDeleteUnique:
		return ops.DeleteUnique(ctx, op.Table, op.ColumnNames())
	case OpCreateIndex:
		_, err := ops.CreateIndex(ctx, op.Table, op.ColumnNames(), op.Unique, op.Tablespace)
		return err
	case OpDeleteIndex:
		return ops.DeleteIndex(ctx, op.Table, op.ColumnNames())
	case OpCreatePrimaryKey:
		_, err := ops.CreatePrimaryKey(ctx, op.Table, op.ColumnNames())
		return err
	case OpDeletePrimaryKey:
		return ops.DeletePrimaryKey(ctx, op.Table)
	case OpCreateForeignKey:
		_, err := ops.CreateForeignKey(ctx, op.Table, op.Column, op.ToTable, op.ToColumn)
		return err
	case OpDeleteForeignKey:
		return ops.DeleteForeignKey(ctx, op.Table, op.Column)
	case OpExecute:
		return ops.ExecuteMany(ctx, op.SQL)
	}
	return fmt.Errorf("unknown operation %q", op.Op)
}
