// Package postgres implements database.Pool on top of pgxpool.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/relicmart/internal/database"
)

// Pool is a PostgreSQL implementation of database.Pool.
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	pool *pgxpool.Pool
}

var _ database.Pool = (*Pool)(nil)

// Probe asks the server for its time on a pooled connection.
func (p *Pool) Probe(ctx context.Context) error {
	var now time.Time
	if err := p.pool.QueryRow(ctx, "SELECT NOW()").Scan(&now); err != nil {
		return mapError(err, "liveness probe failed")
	}
	return nil
}

// Exec executes a statement returning the number of rows affected
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (database.Result, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return database.Result{}, mapError(err, "exec failed")
	}
	return database.Result{RowsAffected: tag.RowsAffected()}, nil
}

// Query executes a query returning multiple rows
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgRows{rows: rows}, nil
}

// QueryRow executes a query returning a single row
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgRow{row: p.pool.QueryRow(ctx, sql, args...)}
}

// Dialect is always DialectPostgres.
func (p *Pool) Dialect() database.Dialect {
	return database.DialectPostgres
}

// Close drains the pool. pgxpool blocks until acquired connections are
// released and reports no error.
func (p *Pool) Close() error {
	p.pool.Close()
	return nil
}

// --- pgRows wraps pgx.Rows ---

type pgRows struct{ rows pgx.Rows }

func (r *pgRows) Next() bool             { return r.rows.Next() }
func (r *pgRows) Scan(dest ...any) error { return mapError(r.rows.Scan(dest...), "scan failed") }
func (r *pgRows) Close()                 { r.rows.Close() }
func (r *pgRows) Err() error             { return mapError(r.rows.Err(), "row iteration failed") }

// --- pgRow wraps pgx.Row ---

type pgRow struct{ row pgx.Row }

func (r *pgRow) Scan(dest ...any) error { return mapError(r.row.Scan(dest...), "query failed") }
