// Package mysql implements database.Pool on top of database/sql and
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver
	"github.com/koustreak/relicmart/internal/database"
)

// Pool is a MySQL implementation of database.Pool.
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	db *sql.DB
}

var _ database.Pool = (*Pool)(nil)

// NewFromDB wraps an already opened *sql.DB.
func NewFromDB(db *sql.DB) *Pool {
	return &Pool{db: db}
}

// Probe asks the server for its time on a pooled connection.
func (p *Pool) Probe(ctx context.Context) error {
	var now time.Time
	if err := p.db.QueryRowContext(ctx, "SELECT NOW()").Scan(&now); err != nil {
		return mapError(err, "liveness probe failed")
	}
	return nil
}

// Exec executes a statement, reporting affected rows and the last insert id.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return database.Result{}, mapError(err, "exec failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return database.Result{}, mapError(err, "rows affected unavailable")
	}
	// LastInsertId is meaningless for UPDATE/DELETE; ignore its error there.
	lastID, _ := res.LastInsertId()
	return database.Result{RowsAffected: affected, LastInsertID: lastID}, nil
}

// Query executes a query returning multiple rows
func (p *Pool) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

// QueryRow executes a query returning a single row
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &mysqlRow{row: p.db.QueryRowContext(ctx, query, args...)}
}

// Dialect is always DialectMySQL.
func (p *Pool) Dialect() database.Dialect {
	return database.DialectMySQL
}

// Close shuts down the pool. sql.DB waits for in-use connections to be
// returned before closing them.
func (p *Pool) Close() error {
	return p.db.Close()
}

// --- mysqlRows wraps *sql.Rows ---

type mysqlRows struct{ rows *sql.Rows }

func (r *mysqlRows) Next() bool             { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error { return mapError(r.rows.Scan(dest...), "scan failed") }
func (r *mysqlRows) Close()                 { _ = r.rows.Close() }
func (r *mysqlRows) Err() error             { return mapError(r.rows.Err(), "row iteration failed") }

// --- mysqlRow wraps *sql.Row ---

type mysqlRow struct{ row *sql.Row }

func (r *mysqlRow) Scan(dest ...any) error { return mapError(r.row.Scan(dest...), "query failed") }
