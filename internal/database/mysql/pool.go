package mysql

import (
	"context"
	"database/sql"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/relicmart/internal/database"
)

const defaultMaxOpenConns = 10

// Open configures a database/sql pool for cfg. Like pgxpool, sql.DB
// connects lazily; call Probe to find out whether the server is there.
func Open(_ context.Context, cfg database.DbConfig, opts database.PoolOptions) (database.Pool, error) {
	db, err := sql.Open("mysql", buildDSN(cfg, opts))
	if err != nil {
		return nil, database.ConnectionError(cfg, err)
	}

	maxOpen := int(opts.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(int(opts.MinConns))
	db.SetConnMaxIdleTime(opts.IdleTimeout)
	db.SetConnMaxLifetime(opts.MaxLifetime)

	return NewFromDB(db), nil
}

// buildDSN renders the driver DSN. parseTime makes DATETIME/TIMESTAMP scan
// into time.Time; clientFoundRows makes UPDATE report matched rather than
// changed rows, so an update that rewrites identical values is not
// mistaken for a missing id.
func buildDSN(cfg database.DbConfig, opts database.PoolOptions) string {
	c := gomysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.ClientFoundRows = true
	c.Timeout = opts.ConnectTimeout
	return c.FormatDSN()
}
