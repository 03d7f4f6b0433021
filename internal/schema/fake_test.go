package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kadirbelkuyu/DBDDL/pkg/logger"
)

type recordingExecutor struct {
	queries []string
	args    [][]any
	failOn  string
	begins  int
	commits int
	rolls   int
}

func (r *recordingExecutor) Execute(_ context.Context, query string, args ...any) ([]Row, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	if r.failOn != "" && strings.Contains(query, r.failOn) {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func (r *recordingExecutor) FetchScalar(context.Context, string, ...any) (any, error) {
	return nil, nil
}

func (r *recordingExecutor) Begin(context.Context) error    { r.begins++; return nil }
func (r *recordingExecutor) Commit(context.Context) error   { r.commits++; return nil }
func (r *recordingExecutor) Rollback(context.Context) error { r.rolls++; return nil }

func (r *recordingExecutor) withPrefix(prefix string) []string {
	var out []string
	for _, q := range r.queries {
		if strings.HasPrefix(q, prefix) {
			out = append(out, q)
		}
	}
	return out
}

// staticIntrospector serves fixed constraint records per table and counts
// how often it is asked.
type staticIntrospector struct {
	tables map[string][]ConstraintRecord
	calls  int
}

func (s *staticIntrospector) introspect(_ context.Context, _ string, table string) ([]ConstraintRecord, error) {
	s.calls++
	return s.tables[table], nil
}

type harness struct {
	exec  *recordingExecutor
	intro *staticIntrospector
	ctrl  *Controller
	ops   *Operations
}

func newHarness(t *testing.T, d Dialect, dryRun bool) *harness {
	t.Helper()
	exec := &recordingExecutor{}
	intro := &staticIntrospector{tables: map[string][]ConstraintRecord{}}
	ctrl := NewController(exec, logger.Discard(), dryRun)
	ops := NewOperations(ctrl, d, NewConstraintCache(intro.introspect), "testdb")
	return &harness{exec: exec, intro: intro, ctrl: ctrl, ops: ops}
}
