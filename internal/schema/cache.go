package schema

import (
	"context"
	"fmt"
)

// EntryState is the lifecycle state of one table's cache entry.
type EntryState int

const (
	StateUninitialized EntryState = iota
	StateInvalid
	StatePopulated
)

func (s EntryState) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StatePopulated:
		return "populated"
	default:
		return "uninitialized"
	}
}

// IntrospectFunc reads the named constraints of a table from the live
// database.
type IntrospectFunc func(ctx context.Context, db, table string) ([]ConstraintRecord, error)

// IntrospectWith binds a dialect's introspection query to an executor.
func IntrospectWith(d Dialect, exec Executor) IntrospectFunc {
	return func(ctx context.Context, db, table string) ([]ConstraintRecord, error) {
		return d.IntrospectConstraints(ctx, exec, db, table)
	}
}

type cacheKey struct {
	db    string
	table string
}

type cacheEntry struct {
	state   EntryState
	columns map[string][]ConstraintRecord
}

// ConstraintCache memoizes per-table constraint metadata, keyed by database
// and table. Entries are replaced wholesale on every write so a reader never
// sees a half-filled table. It is not safe for concurrent use; each
// Operations session owns its own cache.
type ConstraintCache struct {
	introspect IntrospectFunc
	entries    map[cacheKey]cacheEntry
}

func NewConstraintCache(introspect IntrospectFunc) *ConstraintCache {
	return &ConstraintCache{
		introspect: introspect,
		entries:    make(map[cacheKey]cacheEntry),
	}
}

// State reports the lifecycle state of the entry for table.
func (c *ConstraintCache) State(db, table string) EntryState {
	return c.entries[cacheKey{db, table}].state
}

// Lookup returns the column to constraints map for table, introspecting the
// database when the entry is not populated.
func (c *ConstraintCache) Lookup(ctx context.Context, db, table string) (map[string][]ConstraintRecord, error) {
	key := cacheKey{db, table}
	entry := c.entries[key]
	if entry.state != StatePopulated {
		records, err := c.introspect(ctx, db, table)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect constraints of %s: %w", table, err)
		}
		entry = cacheEntry{state: StatePopulated, columns: groupByColumn(records)}
		c.entries[key] = entry
	}
	return copyColumns(entry.columns), nil
}

// LookupColumn returns the constraints touching one column. A column with
// no constraints yields an empty slice, not an error.
func (c *ConstraintCache) LookupColumn(ctx context.Context, db, table, column string) ([]ConstraintRecord, error) {
	columns, err := c.Lookup(ctx, db, table)
	if err != nil {
		return nil, err
	}
	return columns[column], nil
}

// Invalidate marks the entry for table stale and returns what it held if it
// was populated, so a caller can Restore it once a statement succeeds.
func (c *ConstraintCache) Invalidate(db, table string) map[string][]ConstraintRecord {
	key := cacheKey{db, table}
	prev := c.entries[key]
	c.entries[key] = cacheEntry{state: StateInvalid}
	if prev.state != StatePopulated {
		return nil
	}
	return prev.columns
}

// InvalidateAll marks every entry stale, for statements whose target
// tables are unknown.
func (c *ConstraintCache) InvalidateAll() {
	for key := range c.entries {
		c.entries[key] = cacheEntry{state: StateInvalid}
	}
}

// Restore republishes a snapshot taken by Invalidate.
func (c *ConstraintCache) Restore(db, table string, columns map[string][]ConstraintRecord) {
	if columns == nil {
		return
	}
	c.entries[cacheKey{db, table}] = cacheEntry{state: StatePopulated, columns: copyColumns(columns)}
}

// ForgetColumn drops a column from a populated entry. It does nothing for
// entries that would be re-read anyway.
func (c *ConstraintCache) ForgetColumn(db, table, column string) {
	key := cacheKey{db, table}
	entry := c.entries[key]
	if entry.state != StatePopulated {
		return
	}
	columns := copyColumns(entry.columns)
	delete(columns, column)
	c.entries[key] = cacheEntry{state: StatePopulated, columns: columns}
}

// CopyColumn gives newColumn the constraints of oldColumn in a populated
// entry, rewriting the column name inside the copied records.
func (c *ConstraintCache) CopyColumn(db, table, oldColumn, newColumn string) {
	key := cacheKey{db, table}
	entry := c.entries[key]
	if entry.state != StatePopulated {
		return
	}
	columns := copyColumns(entry.columns)
	records := make([]ConstraintRecord, 0, len(columns[oldColumn]))
	for _, rec := range columns[oldColumn] {
		renamed := make([]string, len(rec.Columns))
		for i, col := range rec.Columns {
			if col == oldColumn {
				col = newColumn
			}
			renamed[i] = col
		}
		records = append(records, ConstraintRecord{Kind: rec.Kind, Name: rec.Name, Columns: renamed})
	}
	columns[newColumn] = records
	c.entries[key] = cacheEntry{state: StatePopulated, columns: columns}
}

func groupByColumn(records []ConstraintRecord) map[string][]ConstraintRecord {
	columns := make(map[string][]ConstraintRecord)
	for _, rec := range records {
		for _, col := range rec.Columns {
			columns[col] = append(columns[col], rec)
		}
	}
	return columns
}

func copyColumns(src map[string][]ConstraintRecord) map[string][]ConstraintRecord {
	dst := make(map[string][]ConstraintRecord, len(src))
	for col, records := range src {
		dst[col] = append([]ConstraintRecord(nil), records...)
	}
	return dst
}
