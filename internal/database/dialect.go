package database

import (
	"fmt"
	"strings"
)

// Dialect controls placeholder and identifier-quoting style.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders and "double-quoted" identifiers.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and `backtick` identifiers.
	DialectMySQL
)

func (d Dialect) String() string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "postgres"
}

// Placeholder returns the parameter marker for the idx-th (1-based) argument.
// MySQL ignores idx.
func (d Dialect) Placeholder(idx int) string {
	if d == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", idx)
}

// Quote wraps an identifier in the dialect's quote characters, doubling any
// embedded quote. Callers must still validate identifiers that come from
// configuration; quoting alone is not the whole defence.
func (d Dialect) Quote(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SupportsReturning reports whether INSERT/UPDATE … RETURNING is available.
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres
}
