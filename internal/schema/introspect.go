package schema

import (
	"fmt"
	"strconv"
)

// recordsFromRows groups (column, constraint name, constraint type, position)
// rows into one record per constraint, keeping first-seen order.
func recordsFromRows(rows []Row) []ConstraintRecord {
	var records []ConstraintRecord
	index := make(map[string]int)

	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		column := asString(row[0])
		name := asString(row[1])
		if column == "" || name == "" {
			continue
		}
		kind := ConstraintKind(asString(row[2]))

		key := string(kind) + "\x00" + name
		i, ok := index[key]
		if !ok {
			i = len(records)
			index[key] = i
			records = append(records, ConstraintRecord{Kind: kind, Name: name})
		}
		if !contains(records[i].Columns, column) {
			records[i].Columns = append(records[i].Columns, column)
		}
	}
	return records
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		n, _ := strconv.ParseInt(asString(v), 10, 64)
		return n
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
