package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/koustreak/relicmart/internal/auth"
	"github.com/spf13/cobra"
)

func getCheckConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration without starting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK\n")
			fmt.Fprintf(out, "  listen:    %s\n", cfg.Server.Addr)
			if cfg.Database != nil {
				db := cfg.Database.Redacted()
				fmt.Fprintf(out, "  database:  %s %s/%s table %s\n", db.Driver, db.Addr(), db.Database, db.Table)
			} else {
				fmt.Fprintf(out, "  database:  none (set at runtime)\n")
			}
			fmt.Fprintf(out, "  auth:      %t\n", cfg.Auth.Enabled)
			fmt.Fprintf(out, "  filestore: %t\n", cfg.Filestore.Enabled())
			return nil
		},
	}
}

func getVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relicmart version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func getHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for auth.passwordHash",
		Long: `Print a bcrypt hash for auth.passwordHash.

The password is read from the first argument, or from the first line of
standard input when no argument is given.

Examples:
  relicmart hash-password 's3cret'
  echo 's3cret' | relicmart hash-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
