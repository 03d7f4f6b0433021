package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"github.com/kadirbelkuyu/DBDDL/internal/schema"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxConnection runs statements on a pgx pool. Nested transactions use
// pgx's own savepoint support.
type PgxConnection struct {
	Pool   *pgxpool.Pool
	Config *config.Config
	txs    []pgx.Tx
}

func NewPgxConnection(ctx context.Context, cfg *config.Config) (*PgxConnection, error) {
	pool, err := pgxpool.New(ctx, cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return &PgxConnection{Pool: pool, Config: cfg}, nil
}

func (c *PgxConnection) Close() error {
	c.Pool.Close()
	return nil
}

func (c *PgxConnection) GetDatabaseName() string {
	return c.Config.Database.Database
}

func (c *PgxConnection) current() pgxQuerier {
	if n := len(c.txs); n > 0 {
		return c.txs[n-1]
	}
	return c.Pool
}

func (c *PgxConnection) Execute(ctx context.Context, query string, args ...any) ([]schema.Row, error) {
	if !returnsRows(query) {
		_, err := c.current().Exec(ctx, query, args...)
		return nil, err
	}

	rows, err := c.current().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schema.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
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

func (c *PgxConnection) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	var value any
	if err := c.current().QueryRow(ctx, query, args...).Scan(&value); err != nil {
		return nil, err
	}
	return normalize(value), nil
}

func (c *PgxConnection) Begin(ctx context.Context) error {
	var (
		tx  pgx.Tx
		err error
	)
	if n := len(c.txs); n > 0 {
		tx, err = c.txs[n-1].Begin(ctx)
	} else {
		tx, err = c.Pool.Begin(ctx)
	}
	if err != nil {
		return err
	}
	c.txs = append(c.txs, tx)
	return nil
}

func (c *PgxConnection) Commit(ctx context.Context) error {
	tx, err := c.pop()
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (c *PgxConnection) Rollback(ctx context.Context) error {
	tx, err := c.pop()
	if err != nil {
		return err
	}
	return tx.Rollback(ctx)
}

func (c *PgxConnection) pop() (pgx.Tx, error) {
	n := len(c.txs)
	if n == 0 {
		return nil, errors.New("no transaction in progress")
	}
	tx := c.txs[n-1]
	c.txs = c.txs[:n-1]
	return tx, nil
}
