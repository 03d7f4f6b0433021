package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"github.com/kadirbelkuyu/DBDDL/internal/schema"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Session is a live database handle the DDL engine can run on.
type Session interface {
	schema.Executor
	schema.Transactor
	Close() error
	GetDatabaseName() string
}

// Open connects with the driver selected by cfg.
func Open(ctx context.Context, cfg *config.Config) (Session, error) {
	if cfg.Database.Type == config.TypePostgres && cfg.Database.Driver == config.DriverPgx {
		return NewPgxConnection(ctx, cfg)
	}
	return NewConnection(ctx, cfg)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Connection runs statements over database/sql. Nested transactions are
// emulated with savepoints.
type Connection struct {
	DB     *sql.DB
	Config *config.Config
	tx     *sql.Tx
	depth  int
}

func NewConnection(ctx context.Context, cfg *config.Config) (*Connection, error) {
	db, err := sql.Open(cfg.DriverName(), cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.Database.Type == config.TypeSQLite {
		// every statement must see the same in-memory database and the
		// same transaction
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return &Connection{
		DB:     db,
		Config: cfg,
	}, nil
}

func (c *Connection) Close() error {
	return c.DB.Close()
}

func (c *Connection) GetDatabaseName() string {
	if c.Config.Database.Type == config.TypeSQLite {
		return c.Config.Database.Path
	}
	return c.Config.Database.Database
}

func (c *Connection) current() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.DB
}

func (c *Connection) Execute(ctx context.Context, query string, args ...any) ([]schema.Row, error) {
	if !returnsRows(query) {
		if _, err := c.current().ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
		return nil, nil
	}

	rows, err := c.current().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (c *Connection) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	var value any
	if err := c.current().QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return nil, err
	}
	return normalize(value), nil
}

func (c *Connection) Begin(ctx context.Context) error {
	if c.depth == 0 {
		tx, err := c.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		c.tx = tx
	} else if _, err := c.tx.ExecContext(ctx, "SAVEPOINT "+savepointName(c.depth)); err != nil {
		return err
	}
	c.depth++
	return nil
}

func (c *Connection) Commit(ctx context.Context) error {
	switch c.depth {
	case 0:
		return sql.ErrTxDone
	case 1:
		err := c.tx.Commit()
		c.tx = nil
		c.depth = 0
		return err
	default:
		c.depth--
		_, err := c.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName(c.depth))
		return err
	}
}

func (c *Connection) Rollback(ctx context.Context) error {
	switch c.depth {
	case 0:
		return sql.ErrTxDone
	case 1:
		err := c.tx.Rollback()
		c.tx = nil
		c.depth = 0
		return err
	default:
		c.depth--
		name := savepointName(c.depth)
		if _, err := c.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return err
		}
		_, err := c.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}
}

func savepointName(depth int) string {
	return fmt.Sprintf("ddl_sp_%d", depth)
}

// returnsRows reports whether a statement produces a result set.
func returnsRows(query string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(query))
	for _, prefix := range []string{"select", "with", "pragma", "show", "values", "explain", "describe"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func scanRows(rows *sql.Rows) ([]schema.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []schema.Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(schema.Row, len(values))
		for i, v := range values {
			row[i] = normalize(v)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
