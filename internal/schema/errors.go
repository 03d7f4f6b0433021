package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConstraintNotFound is matched by every *ConstraintNotFoundError.
	ErrConstraintNotFound = errors.New("constraint not found")
	// ErrDryRunUnsupported is returned by operations that need live
	// introspection and so cannot produce an honest dry-run preview.
	ErrDryRunUnsupported = errors.New("operation cannot run in dry-run mode")
	// ErrNotSupported is returned when the dialect has no SQL for an operation.
	ErrNotSupported = errors.New("operation not supported by dialect")
)

// ConstraintNotFoundError reports that no constraint of Kind covers exactly
// Columns on Table.
type ConstraintNotFoundError struct {
	Kind    ConstraintKind
	Table   string
	Columns []string
}

func (e *ConstraintNotFoundError) Error() string {
	if len(e.Columns) == 0 {
		return fmt.Sprintf("cannot find a %s constraint on table %s", e.Kind, e.Table)
	}
	return fmt.Sprintf("cannot find a %s constraint on table %s, columns [%s]",
		e.Kind, e.Table, strings.Join(e.Columns, ", "))
}

func (e *ConstraintNotFoundError) Is(target error) bool {
	return target == ErrConstraintNotFound
}

// ExecutionError wraps a driver error with the statement that caused it.
type ExecutionError struct {
	SQL  string
	Args []any
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to execute %q: %v", e.SQL, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
