package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadirbelkuyu/DBDDL/pkg/logger"
)

var errNoTransaction = errors.New("no active transaction")

// TransactionState is a snapshot of the controller's bookkeeping.
type TransactionState struct {
	Active bool
	DryRun bool
	// PendingDepth counts dry-run transactions not yet rolled back.
	PendingDepth int
}

// Controller routes statements to an executor, owns the transaction
// bookkeeping and the deferred-statement queue. In dry-run mode statements
// are recorded and logged but never sent to the database, and every
// transaction ends in a rollback.
type Controller struct {
	exec       Executor
	tx         Transactor
	logger     *logger.Logger
	dryRun     bool
	depth      int
	pending    int
	deferred   []DeferredStatement
	statements []DeferredStatement
}

// NewController wraps exec. If exec also implements Transactor, transaction
// calls are forwarded to it.
func NewController(exec Executor, log *logger.Logger, dryRun bool) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	c := &Controller{
		exec:   exec,
		logger: log,
		dryRun: dryRun,
	}
	if tx, ok := exec.(Transactor); ok {
		c.tx = tx
	}
	return c
}

func (c *Controller) DryRun() bool { return c.dryRun }

func (c *Controller) State() TransactionState {
	return TransactionState{
		Active:       c.depth > 0,
		DryRun:       c.dryRun,
		PendingDepth: c.pending,
	}
}

// Statements returns every statement passed to Execute, in order, whether
// it ran or was only recorded by a dry run.
func (c *Controller) Statements() []DeferredStatement {
	return append([]DeferredStatement(nil), c.statements...)
}

// Execute runs a schema-changing statement. In dry-run mode it is logged
// and recorded instead.
func (c *Controller) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	c.statements = append(c.statements, DeferredStatement{SQL: query, Args: args})

	if c.dryRun {
		c.logger.ForStatement(query, args).Info("dry run")
		return nil, nil
	}

	c.logger.ForStatement(query, args).Debug("executing")
	rows, err := c.exec.Execute(ctx, query, args...)
	if err != nil {
		c.logger.ForStatement(query, args).WithError(err).Error("statement failed")
		return nil, &ExecutionError{SQL: query, Args: args, Err: err}
	}
	return rows, nil
}

// Query runs a read-only statement against the database, dry run or not.
func (c *Controller) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	c.logger.ForStatement(query, args).Debug("querying")
	rows, err := c.exec.Execute(ctx, query, args...)
	if err != nil {
		c.logger.ForStatement(query, args).WithError(err).Error("query failed")
		return nil, &ExecutionError{SQL: query, Args: args, Err: err}
	}
	return rows, nil
}

// ExecuteMany splits script into statements and executes them in order,
// stopping at the first failure.
func (c *Controller) ExecuteMany(ctx context.Context, script string) error {
	for _, stmt := range SplitStatements(script) {
		if _, err := c.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartTransaction opens a transaction, or a savepoint when one is already
// open.
func (c *Controller) StartTransaction(ctx context.Context) error {
	if c.tx != nil {
		if err := c.tx.Begin(ctx); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
	}
	c.depth++
	if c.dryRun {
		c.pending++
	}
	return nil
}

// CommitTransaction commits the innermost transaction. In dry-run mode the
// commit is replaced by a rollback.
func (c *Controller) CommitTransaction(ctx context.Context) error {
	if c.depth == 0 {
		return fmt.Errorf("failed to commit: %w", errNoTransaction)
	}
	if c.dryRun {
		c.logger.Debug("dry run: rolling back instead of committing")
		return c.RollbackTransaction(ctx)
	}
	if c.tx != nil {
		if err := c.tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	c.depth--
	return nil
}

// RollbackTransaction rolls back the innermost transaction.
func (c *Controller) RollbackTransaction(ctx context.Context) error {
	if c.depth == 0 {
		return fmt.Errorf("failed to roll back: %w", errNoTransaction)
	}
	if c.tx != nil {
		if err := c.tx.Rollback(ctx); err != nil {
			return fmt.Errorf("failed to roll back transaction: %w", err)
		}
	}
	c.depth--
	if c.dryRun && c.pending > 0 {
		c.pending--
	}
	return nil
}

// RollbackDryRun rolls back every dry-run transaction still pending,
// innermost first. It is a no-op outside dry-run mode.
func (c *Controller) RollbackDryRun(ctx context.Context) error {
	if !c.dryRun {
		return nil
	}
	for c.pending > 0 {
		if err := c.RollbackTransaction(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AddDeferred queues a statement for FlushDeferred.
func (c *Controller) AddDeferred(stmt DeferredStatement) {
	c.deferred = append(c.deferred, stmt)
}

// Deferred returns the queued statements without consuming them.
func (c *Controller) Deferred() []DeferredStatement {
	return append([]DeferredStatement(nil), c.deferred...)
}

// FlushDeferred executes the queued statements in order. The queue is
// consumed up front, so a failure drops the statements that did not run.
// It knows nothing of a ConstraintCache; Operations.FlushDeferred also
// invalidates the tables the statements touch.
func (c *Controller) FlushDeferred(ctx context.Context) error {
	for _, stmt := range c.takeDeferred() {
		if _, err := c.Execute(ctx, stmt.SQL, stmt.Args...); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) takeDeferred() []DeferredStatement {
	queue := c.deferred
	c.deferred = nil
	return queue
}

func (c *Controller) ClearDeferred() {
	c.deferred = nil
}
