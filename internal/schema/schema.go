// Package schema provisions the item table on a freshly opened pool.
//
// Provisioning is additive only: an existing table is left exactly as it
// is, whatever its shape. There is no migration history.
package schema

import (
	"context"

	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/logger"
	"github.com/koustreak/relicmart/internal/validate"
)

// Provisioner ensures the item table exists.
type Provisioner struct {
	log *logger.Logger
}

// NewProvisioner returns a Provisioner logging through log.
func NewProvisioner(log *logger.Logger) *Provisioner {
	if log == nil {
		log = logger.Nop()
	}
	return &Provisioner{log: log.Component("schema")}
}

// EnsureTable creates table on pool if it does not exist. Every failure,
// including a rejected table name, is returned as errs.ErrKindSchema or
// errs.ErrKindValidation.
func (p *Provisioner) EnsureTable(ctx context.Context, pool database.Pool, table string) error {
	if !validate.IsIdent(table) {
		return errs.Newf(errs.ErrKindValidation, "invalid table name %q", table)
	}

	existed, err := TableExists(ctx, pool, table)
	if err != nil {
		return errs.Wrap(errs.ErrKindSchema, "checking table "+table, err)
	}

	if _, err := pool.Exec(ctx, CreateTableSQL(pool.Dialect(), table)); err != nil {
		return errs.Wrap(errs.ErrKindSchema, "creating table "+table, err)
	}

	if existed {
		p.log.With().Str("table", table).Logger().Debug("table already present")
	} else {
		p.log.With().Str("table", table).Logger().Info("table created")
	}
	return nil
}

// Columns reports the live column set of table, so callers can surface a
// divergent pre-existing schema without altering it.
func (p *Provisioner) Columns(ctx context.Context, pool database.Pool, table string) ([]string, error) {
	if !validate.IsIdent(table) {
		return nil, errs.Newf(errs.ErrKindValidation, "invalid table name %q", table)
	}
	cols, err := ListColumns(ctx, pool, table)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindSchema, "inspecting table "+table, err)
	}
	return cols, nil
}

// Missing returns the expected columns absent from have.
func Missing(have []string) []string {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	var missing []string
	for _, c := range ColumnNames() {
		if !set[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
