// Package config loads the server configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, RELICMART_*
// environment variables (plus PORT), command-line flags. Flags are applied
// by the caller after Load.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/relicmart/internal/auth"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/filestore"
	"go.yaml.in/yaml/v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELICMART_"

type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Log       LogConfig          `yaml:"log"`
	Pool      PoolConfig         `yaml:"pool"`
	Database  *database.DbConfig `yaml:"database"`
	Auth      auth.Config        `yaml:"auth"`
	Filestore filestore.Config   `yaml:"filestore"`
	Limits    LimitsConfig       `yaml:"limits"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	CORSOrigins       []string      `yaml:"corsOrigins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PoolConfig tunes every pool the connection manager opens.
type PoolConfig struct {
	MaxConns       int32         `yaml:"maxConns"`
	MinConns       int32         `yaml:"minConns"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	MaxLifetime    time.Duration `yaml:"maxLifetime"`
	ProbeTimeout   time.Duration `yaml:"probeTimeout"`
}

// Options converts to the database package's form.
func (p PoolConfig) Options() database.PoolOptions {
	return database.PoolOptions{
		MaxConns:       p.MaxConns,
		MinConns:       p.MinConns,
		ConnectTimeout: p.ConnectTimeout,
		IdleTimeout:    p.IdleTimeout,
		MaxLifetime:    p.MaxLifetime,
		ProbeTimeout:   p.ProbeTimeout,
	}
}

// LimitsConfig throttles the endpoints that open database connections.
type LimitsConfig struct {
	DBPerSecond float64 `yaml:"dbPerSecond"`
	DBBurst     int     `yaml:"dbBurst"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	po := database.DefaultPoolOptions()
	return &Config{
		Server: ServerConfig{
			Addr:              ":3000",
			ShutdownTimeout:   15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			CORSOrigins:       []string{"*"},
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Pool: PoolConfig{
			MaxConns:       po.MaxConns,
			MinConns:       po.MinConns,
			ConnectTimeout: po.ConnectTimeout,
			IdleTimeout:    po.IdleTimeout,
			MaxLifetime:    po.MaxLifetime,
			ProbeTimeout:   po.ProbeTimeout,
		},
		Auth:      auth.DefaultConfig(),
		Filestore: filestore.DefaultConfig(),
		Limits:    LimitsConfig{DBPerSecond: 1, DBBurst: 5},
	}
}

// Load builds a Config from defaults, the optional YAML file at path and
// the environment seen through lookup (os.LookupEnv when nil).
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindValidation, "reading config file "+path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, errs.Wrap(errs.ErrKindValidation, "parsing config file "+path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var problems []string
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				problems = append(problems, EnvPrefix+name+" must be an integer")
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				problems = append(problems, EnvPrefix+name+" must be true or false")
				return
			}
			*dst = b
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.Server.Addr = ":" + port
	}
	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if _, ok := lookup(EnvPrefix + "DB_HOST"); ok && c.Database == nil {
		c.Database = &database.DbConfig{}
	}
	if c.Database != nil {
		var driver string
		str("DB_DRIVER", &driver)
		if driver != "" {
			c.Database.Driver = database.Driver(driver)
		}
		str("DB_HOST", &c.Database.Host)
		integer("DB_PORT", &c.Database.Port)
		str("DB_NAME", &c.Database.Database)
		str("DB_TABLE", &c.Database.Table)
		str("DB_USER", &c.Database.User)
		str("DB_PASSWORD", &c.Database.Password)
	}

	boolean("AUTH_ENABLED", &c.Auth.Enabled)
	str("AUTH_USERNAME", &c.Auth.Username)
	str("AUTH_PASSWORD_HASH", &c.Auth.PasswordHash)
	str("AUTH_SECRET", &c.Auth.Secret)

	str("FILESTORE_ENDPOINT", &c.Filestore.Endpoint)
	str("FILESTORE_ACCESS_KEY", &c.Filestore.AccessKey)
	str("FILESTORE_SECRET_KEY", &c.Filestore.SecretKey)
	str("FILESTORE_BUCKET", &c.Filestore.Bucket)
	str("FILESTORE_PUBLIC_URL", &c.Filestore.PublicURL)
	boolean("FILESTORE_USE_SSL", &c.Filestore.UseSSL)

	if len(problems) > 0 {
		return errs.New(errs.ErrKindValidation, strings.Join(problems, "; "))
	}
	return nil
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	"fatal": true, "panic": true, "disabled": true,
}

// Validate checks the whole config. The bootstrap database target is only
// shape-checked here; whether it is reachable is decided at startup.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdownTimeout must be positive")
	}
	if !logLevels[strings.ToLower(c.Log.Level)] {
		add("log.level %q is not a known level", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "console" {
		add("log.format must be json or console")
	}
	if c.Pool.MaxConns < 1 {
		add("pool.maxConns must be at least 1")
	}
	if c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		add("pool.minConns must be between 0 and pool.maxConns")
	}
	if c.Pool.ConnectTimeout <= 0 || c.Pool.ProbeTimeout <= 0 {
		add("pool.connectTimeout and pool.probeTimeout must be positive")
	}
	if c.Pool.IdleTimeout <= 0 || c.Pool.MaxLifetime <= 0 {
		add("pool.idleTimeout and pool.maxLifetime must be positive")
	}
	if c.Limits.DBPerSecond <= 0 || c.Limits.DBBurst < 1 {
		add("limits.dbPerSecond must be positive and limits.dbBurst at least 1")
	}
	if c.Database != nil {
		if _, err := c.Database.Validate(); err != nil {
			add("database: %v", err)
		}
	}
	if err := c.Auth.Validate(); err != nil {
		add("%v", err)
	}
	if err := c.Filestore.Validate(); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return errs.New(errs.ErrKindValidation, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}
