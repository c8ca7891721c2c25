package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
)

// SQLSTATE classes that mean "we never got a usable session".
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection    = "08"    // connection exception
	pgClassInvalidAuth   = "28"    // invalid authorization specification
	pgErrInvalidDatabase = "3D000" // invalid catalog name
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// It returns a nil error (not a typed nil) when err is nil.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if e, ok := database.ContextError(err, msg); ok {
		return e
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "record not found", err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		switch {
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == pgClassConnection || pgErr.Code[:2] == pgClassInvalidAuth):
			kind = errs.ErrKindConnectionFailed
		case pgErr.Code == pgErrInvalidDatabase:
			kind = errs.ErrKindConnectionFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	if pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
