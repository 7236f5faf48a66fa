package db

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"neomap/core-go/internal/sqlcgen"
)

//go:embed schema.sql
var schemaSQL string

var ErrNoPool = errors.New("database pool not configured")

type Pool struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Verify connectivity early.
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}

	return &Pool{pool: p}, nil
}

func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

func (p *Pool) Queries() *sqlcgen.Queries {
	if p == nil || p.pool == nil {
		return nil
	}
	return sqlcgen.New(p.pool)
}

// EnsureSchema creates the layer tables when they are missing.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return ErrNoPool
	}
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// InTx runs fn inside a transaction and commits when it returns nil.
func (p *Pool) InTx(ctx context.Context, fn func(q *sqlcgen.Queries) error) error {
	if p == nil || p.pool == nil {
		return ErrNoPool
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(sqlcgen.New(p.pool).WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
