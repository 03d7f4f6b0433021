package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirbelkuyu/DBDDL/pkg/logger"
)

// Operations issues DDL for one database through a Controller, consulting
// a ConstraintCache to find constraints it did not create itself.
type Operations struct {
	ctrl    *Controller
	dialect Dialect
	cache   *ConstraintCache
	namer   Namer
	columns *ColumnSQL
	db      string
	logger  *logger.Logger
}

// NewOperations builds an operations session. db names the database for
// cache keys and, on MySQL, for introspection.
func NewOperations(ctrl *Controller, d Dialect, cache *ConstraintCache, db string) *Operations {
	namer := NewNamer(d.Features().MaxIdentifierLength)
	return &Operations{
		ctrl:    ctrl,
		dialect: d,
		cache:   cache,
		namer:   namer,
		columns: NewColumnSQL(d, namer),
		db:      db,
		logger:  ctrl.logger,
	}
}

func (o *Operations) Controller() *Controller { return o.ctrl }

func (o *Operations) Dialect() Dialect { return o.dialect }

func (o *Operations) Namer() Namer { return o.namer }

func (o *Operations) Cache() *ConstraintCache { return o.cache }

func (o *Operations) q(name string) string { return o.dialect.QuoteName(name) }

// exec runs a statement that may change the constraints of table, keeping
// the cache entry invalid on both sides of it.
func (o *Operations) exec(ctx context.Context, table, query string, args ...any) error {
	o.cache.Invalidate(o.db, table)
	_, err := o.ctrl.Execute(ctx, query, args...)
	o.cache.Invalidate(o.db, table)
	return err
}

func (o *Operations) template(tmpl, op string) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("%s on %s: %w", op, o.dialect.Name(), ErrNotSupported)
	}
	return tmpl, nil
}

// CreateTable creates table with columns in order. Defaults are left out;
// foreign keys, indexes and post-create statements are queued as deferred
// SQL.
func (o *Operations) CreateTable(ctx context.Context, table string, columns []ColumnSpec) error {
	if len(table) > o.namer.max() {
		o.logger.Warnf("table name %s is longer than %d characters", table, o.namer.max())
	}

	var fragments []string
	for _, spec := range columns {
		fragment, deferred, ok := o.columns.Render(table, spec.Name, spec.Column, true)
		for _, stmt := range deferred {
			o.ctrl.AddDeferred(stmt)
		}
		if ok {
			fragments = append(fragments, fragment)
		}
	}
	if len(fragments) == 0 {
		return fmt.Errorf("table %s has no columns", table)
	}

	query := fmt.Sprintf("CREATE TABLE %s (%s)", o.q(table), strings.Join(fragments, ", "))
	return o.exec(ctx, table, query)
}

// RenameTable renames a table. Renaming to the same name is a no-op.
func (o *Operations) RenameTable(ctx context.Context, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	o.cache.Invalidate(o.db, newName)
	query := fmt.Sprintf(o.dialect.Statements().RenameTable, o.q(oldName), o.q(newName))
	if err := o.exec(ctx, oldName, query); err != nil {
		return err
	}
	o.cache.Invalidate(o.db, newName)
	return nil
}

// DeleteTable drops a table, cascading to dependent objects when asked and
// supported.
func (o *Operations) DeleteTable(ctx context.Context, table string, cascade bool) error {
	clause := ""
	if cascade && o.dialect.Features().SupportsCascade {
		clause = " CASCADE"
	}
	query := fmt.Sprintf(o.dialect.Statements().DeleteTable, o.q(table), clause)
	return o.exec(ctx, table, query)
}

// ClearTable deletes every row of table.
func (o *Operations) ClearTable(ctx context.Context, table string) error {
	_, err := o.ctrl.Execute(ctx, fmt.Sprintf("DELETE FROM %s", o.q(table)))
	return err
}

// AddColumn adds a column. A default is written with the column so existing
// rows get it, then removed so only the application supplies it afterwards.
func (o *Operations) AddColumn(ctx context.Context, table, name string, col Column) error {
	o.cache.Invalidate(o.db, table)

	fragment, deferred, ok := o.columns.Render(table, name, col, false)
	for _, stmt := range deferred {
		o.ctrl.AddDeferred(stmt)
	}
	if !ok {
		return nil
	}

	query := fmt.Sprintf(o.dialect.Statements().AddColumn, o.q(table), fragment)
	if err := o.exec(ctx, table, query); err != nil {
		return err
	}

	if col.HasDefault() {
		if o.ctrl.DryRun() && !o.dialect.Features().SupportsAlterColumn {
			o.logger.Infof("dry run: skipping default removal on %s.%s, it needs a table rebuild", table, name)
			return nil
		}
		return o.alterColumn(ctx, table, name, col.WithoutDefault(), true)
	}
	return nil
}

// DeleteColumn drops a column. On success the cached constraints of the
// table are kept, minus the dropped column.
func (o *Operations) DeleteColumn(ctx context.Context, table, name string) error {
	snapshot := o.cache.Invalidate(o.db, table)
	query := fmt.Sprintf(o.dialect.Statements().DeleteColumn, o.q(table), o.q(name))
	if _, err := o.ctrl.Execute(ctx, query); err != nil {
		return err
	}
	if o.ctrl.DryRun() {
		return nil
	}
	o.cache.Restore(o.db, table, snapshot)
	o.cache.ForgetColumn(o.db, table, name)
	return nil
}

// RenameColumn renames a column, carrying its cached constraints over to
// the new name.
func (o *Operations) RenameColumn(ctx context.Context, table, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	snapshot := o.cache.Invalidate(o.db, table)
	query := fmt.Sprintf(o.dialect.Statements().RenameColumn, o.q(table), o.q(oldName), o.q(newName))
	if _, err := o.ctrl.Execute(ctx, query); err != nil {
		return err
	}
	if o.ctrl.DryRun() {
		return nil
	}
	o.cache.Restore(o.db, table, snapshot)
	o.cache.CopyColumn(o.db, table, oldName, newName)
	o.cache.ForgetColumn(o.db, table, oldName)
	return nil
}

// CreateUnique adds a unique constraint over columns and returns its name.
func (o *Operations) CreateUnique(ctx context.Context, table string, columns []string) (string, error) {
	name := o.namer.IndexName(table, columns, "_uniq")
	query := fmt.Sprintf(o.dialect.Statements().CreateUnique, o.q(table), o.q(name), quoteList(o.dialect, columns))
	if err := o.exec(ctx, table, query); err != nil {
		return "", err
	}
	return name, nil
}

// DeleteUnique drops every unique constraint covering exactly columns.
// Skipped in dry-run mode.
func (o *Operations) DeleteUnique(ctx context.Context, table string, columns []string) error {
	if o.ctrl.DryRun() {
		o.logger.Infof("dry run: skipping delete_unique on %s (%s)", table, strings.Join(columns, ", "))
		return nil
	}
	return o.deleteConstraints(ctx, table, columns, KindUnique, o.dialect.Statements().DeleteUnique)
}

// CreateIndex creates an index over columns and returns its name.
func (o *Operations) CreateIndex(ctx context.Context, table string, columns []string, unique bool, tablespace string) (string, error) {
	name := o.namer.IndexName(table, columns, "")
	if err := o.exec(ctx, table, o.columns.CreateIndexSQL(table, columns, unique, tablespace)); err != nil {
		return "", err
	}
	return name, nil
}

// DeleteIndex drops the index CreateIndex would have made for columns.
func (o *Operations) DeleteIndex(ctx context.Context, table string, columns []string) error {
	name := o.namer.IndexName(table, columns, "")
	query := fmt.Sprintf(o.dialect.Statements().DeleteIndex, o.q(table), o.q(name))
	return o.exec(ctx, table, query)
}

// CreatePrimaryKey adds a primary key over columns and returns its name.
func (o *Operations) CreatePrimaryKey(ctx context.Context, table string, columns []string) (string, error) {
	tmpl, err := o.template(o.dialect.Statements().CreatePrimaryKey, "create_primary_key")
	if err != nil {
		return "", err
	}
	name := o.namer.IndexName(table, columns, "_pkey")
	query := fmt.Sprintf(tmpl, o.q(table), o.q(name), quoteList(o.dialect, columns))
	if err := o.exec(ctx, table, query); err != nil {
		return "", err
	}
	return name, nil
}

// DeletePrimaryKey drops the primary key of table. It needs the live
// constraint name and so fails in dry-run mode.
func (o *Operations) DeletePrimaryKey(ctx context.Context, table string) error {
	tmpl, err := o.template(o.dialect.Statements().DeletePrimaryKey, "delete_primary_key")
	if err != nil {
		return err
	}
	return o.deleteConstraints(ctx, table, nil, KindPrimaryKey, tmpl)
}

// CreateForeignKey adds a foreign key and returns its name.
func (o *Operations) CreateForeignKey(ctx context.Context, table, column, toTable, toColumn string) (string, error) {
	if !o.dialect.Features().SupportsForeignKeys {
		return "", fmt.Errorf("create_foreign_key on %s: %w", o.dialect.Name(), ErrNotSupported)
	}
	query := o.columns.ForeignKeySQL(table, column, toTable, toColumn)
	if err := o.exec(ctx, table, query); err != nil {
		return "", err
	}
	return o.namer.ForeignKeyName(table, column, toTable, toColumn), nil
}

// ForeignKeySQL returns the statement CreateForeignKey would run.
func (o *Operations) ForeignKeySQL(table, column, toTable, toColumn string) string {
	return o.columns.ForeignKeySQL(table, column, toTable, toColumn)
}

// DeleteForeignKey drops the foreign keys on column. Skipped in dry-run
// mode.
func (o *Operations) DeleteForeignKey(ctx context.Context, table, column string) error {
	if o.ctrl.DryRun() {
		o.logger.Infof("dry run: skipping delete_foreign_key on %s.%s", table, column)
		return nil
	}
	tmpl, err := o.template(o.dialect.Statements().DeleteForeignKey, "delete_foreign_key")
	if err != nil {
		return err
	}
	o.cache.Invalidate(o.db, table)

	names, err := o.constraintsAffecting(ctx, table, []string{column}, KindForeignKey)
	if err != nil {
		return err
	}

	// Some engines report a foreign key on a single-column primary key
	// against the whole key, so widen the search to it.
	pk, err := o.primaryKeyColumns(ctx, table)
	if err != nil {
		return err
	}
	if len(pk) <= 1 {
		widened, err := o.constraintsAffecting(ctx, table, appendUnique(pk, column), KindForeignKey)
		if err != nil {
			return err
		}
		names = mergeNames(names, widened)
	}

	if len(names) == 0 {
		return &ConstraintNotFoundError{Kind: KindForeignKey, Table: table, Columns: []string{column}}
	}
	for _, name := range names {
		if err := o.exec(ctx, table, fmt.Sprintf(tmpl, o.q(table), o.q(name))); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs raw SQL. Any table may be affected, so the whole cache is
// invalidated around it.
func (o *Operations) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	o.cache.InvalidateAll()
	rows, err := o.ctrl.Execute(ctx, query, args...)
	o.cache.InvalidateAll()
	return rows, err
}

// ExecuteMany runs a multi-statement script, invalidating the whole cache
// like Execute.
func (o *Operations) ExecuteMany(ctx context.Context, script string) error {
	o.cache.InvalidateAll()
	err := o.ctrl.ExecuteMany(ctx, script)
	o.cache.InvalidateAll()
	return err
}

// FlushDeferred runs the controller's deferred queue, invalidating each
// statement's table around it.
func (o *Operations) FlushDeferred(ctx context.Context) error {
	for _, stmt := range o.ctrl.takeDeferred() {
		if stmt.Table == "" {
			if _, err := o.Execute(ctx, stmt.SQL, stmt.Args...); err != nil {
				return err
			}
			continue
		}
		if err := o.exec(ctx, stmt.Table, stmt.SQL, stmt.Args...); err != nil {
			return err
		}
	}
	return nil
}

func (o *Operations) deleteConstraints(ctx context.Context, table string, columns []string, kind ConstraintKind, tmpl string) error {
	o.cache.Invalidate(o.db, table)
	names, err := o.constraintsAffecting(ctx, table, columns, kind)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return &ConstraintNotFoundError{Kind: kind, Table: table, Columns: columns}
	}
	for _, name := range names {
		if err := o.exec(ctx, table, fmt.Sprintf(tmpl, o.q(table), o.q(name))); err != nil {
			return err
		}
	}
	return nil
}

// constraintsAffecting returns the names of constraints of kind whose column
// set equals columns, compared case-insensitively. Nil columns matches every
// constraint of kind.
func (o *Operations) constraintsAffecting(ctx context.Context, table string, columns []string, kind ConstraintKind) ([]string, error) {
	if o.ctrl.DryRun() {
		return nil, fmt.Errorf("cannot look up constraints of %s: %w", table, ErrDryRunUnsupported)
	}
	entry, err := o.cache.Lookup(ctx, o.db, table)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]map[string]bool)
	for column, records := range entry {
		for _, rec := range records {
			if rec.Kind != kind {
				continue
			}
			if byName[rec.Name] == nil {
				byName[rec.Name] = make(map[string]bool)
			}
			byName[rec.Name][strings.ToLower(column)] = true
		}
	}

	want := make(map[string]bool, len(columns))
	for _, col := range columns {
		want[strings.ToLower(col)] = true
	}

	var names []string
	for name, cols := range byName {
		if columns == nil || sameSet(cols, want) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (o *Operations) primaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	entry, err := o.cache.Lookup(ctx, o.db, table)
	if err != nil {
		return nil, err
	}
	var pk []string
	for column, records := range entry {
		for _, rec := range records {
			if rec.Kind == KindPrimaryKey {
				pk = append(pk, column)
				break
			}
		}
	}
	sort.Strings(pk)
	return pk, nil
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func appendUnique(list []string, s string) []string {
	out := append([]string(nil), list...)
	if !contains(out, s) {
		out = append(out, s)
	}
	return out
}

func mergeNames(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, name := range b {
		if !contains(out, name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
