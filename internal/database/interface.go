package database

import "context"

// Pool is the contract every backend's connection pool satisfies.
// All layers above this package talk only to this interface; they never
// import the postgres or mysql packages directly.
type Pool interface {
	// Probe runs a trivial query (server time) to prove the pool can
	// actually reach and authenticate to the server.
	Probe(ctx context.Context) error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...any) (Result, error)

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement expected to return at most one row.
	// Errors are deferred to Row.Scan.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Dialect reports the SQL flavour the pool speaks.
	Dialect() Dialect

	// Close releases every connection. It blocks until connections that
	// are checked out have been returned.
	Close() error
}

// Opener builds a new, not yet probed, Pool for cfg.
type Opener func(ctx context.Context, cfg DbConfig, opts PoolOptions) (Pool, error)

// Result is what Exec reports back.
type Result struct {
	RowsAffected int64
	// LastInsertID is only populated by backends without RETURNING support.
	LastInsertID int64
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// Row is an abstraction over a single database row.
// Scan returns an errs.ErrKindNotFound error when there was no row.
type Row interface {
	Scan(dest ...any) error
}
