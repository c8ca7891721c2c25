package database

import (
	"fmt"
	"time"

	"github.com/koustreak/relicmart/internal/validate"
)

// Driver identifies the database engine.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// DbConfig is the client-supplied target of a reconfiguration: where to
// connect and which table holds the items. It is treated as an immutable
// value once Validate has accepted it.
type DbConfig struct {
	// Driver is optional on the wire; empty means DriverPostgres.
	Driver   Driver `json:"driver,omitempty" yaml:"driver" validate:"omitempty,oneof=postgres mysql"`
	Host     string `json:"host" yaml:"host" validate:"required"`
	Port     int    `json:"port" yaml:"port" validate:"gte=1,lte=65535"`
	Database string `json:"database" yaml:"database" validate:"required"`
	Table    string `json:"table" yaml:"table" validate:"required,sqlident"`
	User     string `json:"user" yaml:"user" validate:"required"`
	Password string `json:"password" yaml:"password" validate:"required"`
}

// Validate checks every field and normalises Driver.
func (c DbConfig) Validate() (DbConfig, error) {
	if err := validate.Struct(c); err != nil {
		return DbConfig{}, err
	}
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	return c, nil
}

// Redacted returns a copy safe to log or return to clients.
func (c DbConfig) Redacted() DbConfig {
	if c.Password != "" {
		c.Password = "********"
	}
	return c
}

// Addr is host:port, for log lines.
func (c DbConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PoolOptions are server-side pool tuning knobs. They are never taken from
// the client payload.
type PoolOptions struct {
	MaxConns       int32         // maximum number of connections in the pool
	MinConns       int32         // minimum number of idle connections kept alive
	ConnectTimeout time.Duration // time limit for establishing a new connection
	IdleTimeout    time.Duration // maximum time a connection may sit idle
	MaxLifetime    time.Duration // maximum time a connection may be reused
	ProbeTimeout   time.Duration // deadline for the liveness probe after open
}

// DefaultPoolOptions mirrors the timeouts the shop has always run with:
// 2s to connect, 30s idle.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:       10,
		MinConns:       0,
		ConnectTimeout: 2 * time.Second,
		IdleTimeout:    30 * time.Second,
		MaxLifetime:    30 * time.Minute,
		ProbeTimeout:   5 * time.Second,
	}
}
