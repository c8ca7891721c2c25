package postgres

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/relicmart/internal/database"
)

const (
	defaultMaxConns = 10
	defaultSSLMode  = "disable"
)

// Open builds a pgxpool for cfg. pgxpool connects lazily, so a nil error
// does not mean the server is reachable; call Probe for that.
func Open(ctx context.Context, cfg database.DbConfig, opts database.PoolOptions) (database.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(cfg))
	if err != nil {
		return nil, database.ConnectionError(cfg, err)
	}

	poolCfg.MaxConns = withDefault(opts.MaxConns, defaultMaxConns)
	poolCfg.MinConns = opts.MinConns
	poolCfg.MaxConnIdleTime = opts.IdleTimeout
	poolCfg.MaxConnLifetime = opts.MaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, database.ConnectionError(cfg, err)
	}

	return &Pool{pool: pool}, nil
}

// buildDSN constructs a postgres:// URL. Credentials go through url.UserPassword
// so passwords with spaces or '@' survive.
func buildDSN(cfg database.DbConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {defaultSSLMode}}.Encode(),
	}
	return u.String()
}

// withDefault returns val if non-zero, otherwise returns def
func withDefault(val, def int32) int32 {
	if val == 0 {
		return def
	}
	return val
}
