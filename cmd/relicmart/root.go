package main

import (
	"fmt"

	"github.com/koustreak/relicmart/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgFile string
}

// load reads the configuration. Flag overrides are applied by each
// subcommand afterwards.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func getRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "relicmart",
		Short: "relicmart serves a magic item catalog from a runtime-chosen database",
		Long: `relicmart is an HTTP service for a catalog of magic items. The backing
database (PostgreSQL or MySQL) and table are chosen at runtime through
POST /db/config and can be switched without a restart.

Configuration precedence (highest to lowest):
  1. CLI flags (--addr, --log-level, ...)
  2. Environment variables (RELICMART_*, plus PORT)
  3. Config file (--config)
  4. Built-in defaults

Environment Variables:
  RELICMART_ADDR                 listen address
  RELICMART_LOG_LEVEL            debug/info/warn/error
  RELICMART_DB_HOST ...          bootstrap database target
  RELICMART_AUTH_ENABLED         guard the admin routes
  RELICMART_FILESTORE_ENDPOINT   S3-compatible image store`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "",
		"YAML config file (optional)")

	rootCmd.AddCommand(getServeCmd(opts))
	rootCmd.AddCommand(getCheckConfigCmd(opts))
	rootCmd.AddCommand(getHashPasswordCmd())
	rootCmd.AddCommand(getVersionCmd())

	return rootCmd
}
