package schema

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/DBDDL/pkg/logger"
)

func TestDryRunRecordsInsteadOfExecuting(t *testing.T) {
	h := newHarness(t, Postgres{}, true)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartTransaction(ctx))
	assert.Equal(t, TransactionState{Active: true, DryRun: true, PendingDepth: 1}, h.ctrl.State())

	require.NoError(t, h.ops.CreateTable(ctx, "authors", []ColumnSpec{
		{Name: "id", Column: Column{Type: TypeSerial, PrimaryKey: true}},
	}))
	assert.Empty(t, h.exec.queries)
	require.Len(t, h.ctrl.Statements(), 1)
	assert.Contains(t, h.ctrl.Statements()[0].SQL, `CREATE TABLE "authors"`)

	require.NoError(t, h.ctrl.RollbackTransaction(ctx))
	assert.Equal(t, TransactionState{DryRun: true}, h.ctrl.State())
	assert.Equal(t, 1, h.exec.begins)
	assert.Equal(t, 1, h.exec.rolls)
}

func TestDryRunCommitRollsBack(t *testing.T) {
	h := newHarness(t, Postgres{}, true)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartTransaction(ctx))
	require.NoError(t, h.ctrl.CommitTransaction(ctx))

	assert.Zero(t, h.exec.commits)
	assert.Equal(t, 1, h.exec.rolls)
	assert.Zero(t, h.ctrl.State().PendingDepth)
}

func TestRollbackDryRunUnwindsNestedTransactions(t *testing.T) {
	h := newHarness(t, Postgres{}, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.ctrl.StartTransaction(ctx))
	}
	assert.Equal(t, 3, h.ctrl.State().PendingDepth)

	require.NoError(t, h.ctrl.RollbackDryRun(ctx))
	assert.Equal(t, TransactionState{DryRun: true}, h.ctrl.State())
	assert.Equal(t, 3, h.exec.rolls)
}

func TestRollbackDryRunOutsideDryRun(t *testing.T) {
	h := newHarness(t, Postgres{}, false)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartTransaction(ctx))
	require.NoError(t, h.ctrl.RollbackDryRun(ctx))
	assert.True(t, h.ctrl.State().Active)

	require.NoError(t, h.ctrl.CommitTransaction(ctx))
	assert.Equal(t, 1, h.exec.commits)
	assert.False(t, h.ctrl.State().Active)
}

func TestCommitWithoutTransaction(t *testing.T) {
	h := newHarness(t, Postgres{}, false)

	assert.Error(t, h.ctrl.CommitTransaction(context.Background()))
	assert.Error(t, h.ctrl.RollbackTransaction(context.Background()))
}

func TestExecutionErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	exec := &recordingExecutor{failOn: "DROP"}
	ctrl := NewController(exec, logger.New(&buf, false), false)

	_, err := ctrl.Execute(context.Background(), "DROP TABLE missing")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "DROP TABLE missing", execErr.SQL)
	assert.EqualError(t, execErr.Unwrap(), "boom")
	assert.Contains(t, buf.String(), "DROP TABLE missing")
	assert.Contains(t, buf.String(), "level=error")
}

func TestQueryErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	exec := &recordingExecutor{failOn: "pragma_table_info"}
	ctrl := NewController(exec, logger.New(&buf, false), false)

	_, err := ctrl.Query(context.Background(), "SELECT name FROM pragma_table_info(?)", "missing")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []any{"missing"}, execErr.Args)
	assert.Contains(t, buf.String(), "pragma_table_info")
	assert.Contains(t, buf.String(), "missing")
	assert.Contains(t, buf.String(), "level=error")
}

func TestFlushDeferredStopsAtFailure(t *testing.T) {
	exec := &recordingExecutor{failOn: "second"}
	ctrl := NewController(exec, nil, false)
	ctx := context.Background()

	ctrl.AddDeferred(DeferredStatement{SQL: "first"})
	ctrl.AddDeferred(DeferredStatement{SQL: "second"})
	ctrl.AddDeferred(DeferredStatement{SQL: "third"})

	require.Error(t, ctrl.FlushDeferred(ctx))
	assert.Equal(t, []string{"first", "second"}, exec.queries)
	assert.Empty(t, ctrl.Deferred())
}

func TestClearDeferred(t *testing.T) {
	exec := &recordingExecutor{}
	ctrl := NewController(exec, nil, false)

	ctrl.AddDeferred(DeferredStatement{SQL: "CREATE INDEX x ON t (c)"})
	ctrl.ClearDeferred()

	require.NoError(t, ctrl.FlushDeferred(context.Background()))
	assert.Empty(t, exec.queries)
}
