package schema

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
)

// DefaultMaxIdentifierLength is used when a dialect does not state a limit.
const DefaultMaxIdentifierLength = 63

const digestLength = 8

// Namer derives deterministic, length-bounded identifiers for indexes and
// constraints. The same inputs always produce the same name, which is what
// lets later operations find a constraint without introspecting it.
type Namer struct {
	MaxLength int
}

func NewNamer(maxLength int) Namer {
	return Namer{MaxLength: maxLength}
}

func (n Namer) max() int {
	if n.MaxLength <= 0 {
		return DefaultMaxIdentifierLength
	}
	return n.MaxLength
}

// IndexName returns the name for an index or constraint over columns of
// table. Suffix distinguishes kinds, e.g. "_uniq" or "_pkey".
func (n Namer) IndexName(table string, columns []string, suffix string) string {
	table = cleanName(table)
	cleaned := make([]string, len(columns))
	for i, col := range columns {
		cleaned[i] = cleanName(col)
	}

	if len(cleaned) == 1 && suffix == "" {
		return n.Shorten(table + "_" + digest(cleaned[0]))
	}

	first := ""
	if len(cleaned) > 0 {
		first = cleaned[0]
	}
	tail := "_" + digest(append([]string{table}, cleaned...)...) + suffix
	limit := n.max()

	if len(tail) >= limit {
		return n.Shorten(tail)
	}
	part := "_" + first + tail
	if len(table)+len(part) <= limit {
		return table + part
	}
	if len(part) < limit {
		return truncate(table, limit-len(part)) + part
	}
	return truncate(table+"_"+first, limit-len(tail)) + tail
}

// ForeignKeyName returns the constraint name for a foreign key. The digest
// tail is always kept; only the descriptive prefix is truncated.
func (n Namer) ForeignKeyName(fromTable, fromColumn, toTable, toColumn string) string {
	head := cleanName(fromColumn) + "_refs_" + cleanName(toColumn)
	tail := "_" + digest(cleanName(fromTable), cleanName(toTable))
	limit := n.max()
	if len(head)+len(tail) <= limit {
		return head + tail
	}
	if len(tail) >= limit {
		return n.Shorten(head + tail)
	}
	return truncate(head, limit-len(tail)) + tail
}

// Shorten returns name unchanged if it fits, otherwise a truncated prefix
// followed by a digest of the full name.
func (n Namer) Shorten(name string) string {
	limit := n.max()
	if len(name) <= limit {
		return name
	}
	sum := digest(name)
	if limit <= len(sum) {
		return sum[:limit]
	}
	return truncate(name, limit-len(sum)) + sum
}

func digest(parts ...string) string {
	sum := xxh3.HashString(strings.Join(parts, "\x00"))
	return fmt.Sprintf("%0*x", digestLength, uint32(sum))
}

func cleanName(name string) string {
	name = strings.NewReplacer(`"`, "", "`", "", ".", "_").Replace(name)
	return name
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
