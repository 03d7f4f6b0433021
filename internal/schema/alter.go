package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AlterColumn changes column name of table to match col. Nullability,
// type and default are all rewritten; any previous default is dropped and
// a default in col is only used to backfill NULLs.
func (o *Operations) AlterColumn(ctx context.Context, table, name string, col Column) error {
	return o.alterColumn(ctx, table, name, col, false)
}

func (o *Operations) alterColumn(ctx context.Context, table, name string, col Column, ignoreConstraints bool) error {
	features := o.dialect.Features()
	if !features.SupportsAlterColumn {
		return o.rebuildColumn(ctx, table, name, col)
	}
	if o.ctrl.DryRun() {
		o.logger.Infof("dry run: no output for alter_column on %s.%s, it depends on live constraints", table, name)
		return nil
	}

	o.cache.Invalidate(o.db, table)
	stmts := o.dialect.Statements()

	if !ignoreConstraints {
		if features.HasCheckConstraints {
			checks, err := o.constraintsAffecting(ctx, table, []string{name}, KindCheck)
			if err != nil {
				return err
			}
			for _, check := range checks {
				if err := o.exec(ctx, table, fmt.Sprintf(stmts.DeleteCheck, o.q(table), o.q(check))); err != nil {
					return err
				}
			}
		}
		if err := o.DeleteForeignKey(ctx, table, name); err != nil && !errors.Is(err, ErrConstraintNotFound) {
			return err
		}
	}

	typ, hasType := o.dialect.TypeFor(alterType(col))
	column := o.q(name)

	var fragments []string
	if hasType {
		fragments = append(fragments, fmt.Sprintf(stmts.AlterType, column, typ))
	}
	if col.Null || col.HasDefault() {
		fragments = append(fragments, fmt.Sprintf(stmts.SetNull, column, typ))
	} else {
		fragments = append(fragments, fmt.Sprintf(stmts.DropNull, column, typ))
	}
	fragments = append(fragments, fmt.Sprintf(stmts.DropDefault, column))

	if features.AllowsCombinedAlters {
		query := fmt.Sprintf("ALTER TABLE %s %s", o.q(table), strings.Join(fragments, ", "))
		if err := o.exec(ctx, table, query); err != nil {
			return err
		}
	} else {
		for _, fragment := range fragments {
			if err := o.exec(ctx, table, fmt.Sprintf("ALTER TABLE %s %s", o.q(table), fragment)); err != nil {
				return err
			}
		}
	}

	if value, ok := resolveDefault(col); ok && !col.Null {
		// a Raw default is an expression and must not be bound as a value
		setTo, args := o.dialect.Placeholder(1), []any{value}
		if raw, isRaw := value.(Raw); isRaw {
			setTo, args = o.columns.Literal(raw), nil
		}
		backfill := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL",
			o.q(table), column, setTo, column)
		if _, err := o.ctrl.Execute(ctx, backfill, args...); err != nil {
			return err
		}
		query := fmt.Sprintf("ALTER TABLE %s %s", o.q(table), fmt.Sprintf(stmts.DropNull, column, typ))
		if err := o.exec(ctx, table, query); err != nil {
			return err
		}
	}

	if !ignoreConstraints && col.References != nil && features.SupportsForeignKeys {
		query := o.columns.ForeignKeySQL(table, name, col.References.Table, col.References.Column)
		if err := o.exec(ctx, table, query); err != nil {
			return err
		}
	}
	return nil
}

// alterType maps creation-only types to the storage type an ALTER accepts.
func alterType(col Column) Column {
	switch col.Type {
	case TypeSerial:
		col.Type = TypeInteger
	case TypeBigSerial:
		col.Type = TypeBigInteger
	}
	return col
}

type tableColumn struct {
	name       string
	definition string
	pk         int64
}

// rebuildColumn changes a column on engines without ALTER COLUMN by copying
// the table into a new one with the target definition. Indexes are
// recreated from their stored SQL and foreign keys carried inline.
func (o *Operations) rebuildColumn(ctx context.Context, table, name string, col Column) error {
	if o.ctrl.DryRun() {
		return fmt.Errorf("cannot preview rebuild of %s for column %s: %w", table, name, ErrDryRunUnsupported)
	}

	info, err := o.ctrl.Query(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return err
	}
	if len(info) == 0 {
		return fmt.Errorf("table %s does not exist", table)
	}
	foreignKeys, err := o.ctrl.Query(ctx,
		`SELECT id, "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return err
	}
	uniques, err := o.ctrl.Query(ctx,
		`SELECT il.name, ii.name FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
		WHERE il.origin = 'u' ORDER BY il.name, ii.seqno`, table)
	if err != nil {
		return err
	}
	indexes, err := o.ctrl.Query(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL`, table)
	if err != nil {
		return err
	}

	target := col
	value, backfill := resolveDefault(col)
	backfill = backfill && !col.Null

	var (
		columns []tableColumn
		found   bool
		pkCount int
	)
	for _, row := range info {
		c := tableColumn{name: asString(row[0]), pk: asInt(row[4])}
		if c.pk > 0 {
			pkCount++
		}
		if c.name == name {
			found = true
			continue
		}
		def := o.q(c.name)
		if typ := asString(row[1]); typ != "" {
			def += " " + typ
		}
		if asInt(row[2]) != 0 {
			def += " NOT NULL"
		}
		if row[3] != nil {
			def += " DEFAULT " + asString(row[3])
		}
		c.definition = def
		columns = append(columns, c)
	}
	if !found {
		return fmt.Errorf("column %s does not exist on table %s", name, table)
	}

	// A composite key is declared at table level, so the target joins it
	// instead of declaring PRIMARY KEY inline.
	var pkColumns []tableColumn
	for i, c := range columns {
		if c.pk > 0 {
			pkColumns = append(pkColumns, columns[i])
		}
	}
	if target.PrimaryKey && len(pkColumns) > 0 {
		target.PrimaryKey = false
		pkColumns = append(pkColumns, tableColumn{name: name, pk: int64(pkCount + 1)})
	}

	fragment, _, ok := o.columns.Render(table, name, target, true)
	if !ok {
		return fmt.Errorf("column %s: no SQL type for %s on %s", name, col.Type, o.dialect.Name())
	}

	var (
		defs    []string
		names   []string
		selects []string
	)
	for _, row := range info {
		colName := asString(row[0])
		names = append(names, o.q(colName))
		if colName == name {
			defs = append(defs, fragment)
			if backfill {
				selects = append(selects, fmt.Sprintf("COALESCE(%s, %s)", o.q(name), o.columns.Literal(value)))
			} else {
				selects = append(selects, o.q(name))
			}
			continue
		}
		for _, c := range columns {
			if c.name == colName {
				defs = append(defs, c.definition)
				break
			}
		}
		selects = append(selects, o.q(colName))
	}

	if len(pkColumns) > 0 {
		sort.Slice(pkColumns, func(i, j int) bool { return pkColumns[i].pk < pkColumns[j].pk })
		keys := make([]string, len(pkColumns))
		for i, c := range pkColumns {
			keys[i] = c.name
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(o.dialect, keys)))
	}
	for _, unique := range recordsFromRows(uniqueRows(uniques)) {
		if len(unique.Columns) == 1 && unique.Columns[0] == name {
			continue
		}
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", quoteList(o.dialect, unique.Columns)))
	}
	// the target's own foreign key is replaced by col.References, rendered inline
	for _, fk := range groupForeignKeys(foreignKeys) {
		if len(fk.from) == 1 && fk.from[0] == name {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteList(o.dialect, fk.from), o.q(fk.table), quoteList(o.dialect, fk.to)))
	}

	temp := o.namer.Shorten("_rebuild_" + table)
	statements := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", o.q(temp), strings.Join(defs, ", ")),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			o.q(temp), strings.Join(names, ", "), strings.Join(selects, ", "), o.q(table)),
		fmt.Sprintf("DROP TABLE %s", o.q(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", o.q(temp), o.q(table)),
	}
	for _, index := range indexes {
		statements = append(statements, asString(index[0]))
	}

	for _, stmt := range statements {
		if err := o.exec(ctx, table, stmt); err != nil {
			return err
		}
	}
	return nil
}

type sqliteForeignKey struct {
	table string
	from  []string
	to    []string
}

// groupForeignKeys folds pragma_foreign_key_list rows, ordered by id and
// seq, into one entry per constraint.
func groupForeignKeys(rows []Row) []sqliteForeignKey {
	var keys []sqliteForeignKey
	lastID := int64(-1)
	for _, row := range rows {
		id := asInt(row[0])
		if len(keys) == 0 || id != lastID {
			keys = append(keys, sqliteForeignKey{table: asString(row[2])})
			lastID = id
		}
		fk := &keys[len(keys)-1]
		fk.from = append(fk.from, asString(row[1]))
		fk.to = append(fk.to, asString(row[3]))
	}
	return keys
}

// uniqueRows reshapes (index, column) rows into the layout recordsFromRows
// reads.
func uniqueRows(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, Row{row[1], row[0], string(KindUnique)})
	}
	return out
}
