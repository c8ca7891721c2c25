package mysql

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied      = 1045
	errDBAccessDenied    = 1044
	errUnknownDatabase   = 1049
	errTooManyConns      = 1040
	errHostNotPrivileged = 1130
)

// mapError converts a MySQL driver error into an *errs.Error.
// It returns a nil error (not a typed nil) when err is nil.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if e, ok := database.ContextError(err, msg); ok {
		return e
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "record not found", err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errAccessDenied, errDBAccessDenied, errUnknownDatabase, errTooManyConns, errHostNotPrivileged:
			return errs.Wrap(errs.ErrKindConnectionFailed,
				fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed,
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
