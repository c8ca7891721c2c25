package schema

import (
	"context"
	"fmt"

	"github.com/koustreak/relicmart/internal/database"
)

// TableExists checks whether table exists in the connection's current
// schema (Postgres) or database (MySQL).
func TableExists(ctx context.Context, pool database.Pool, table string) (bool, error) {
	q := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`
	if pool.Dialect() == database.DialectMySQL {
		q = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_name = ?
		)`
	}

	var exists bool
	if err := pool.QueryRow(ctx, q, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("table exists check: %w", err)
	}
	return exists, nil
}

// ListColumns returns the column names of table in ordinal order.
func ListColumns(ctx context.Context, pool database.Pool, table string) ([]string, error) {
	q := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
	if pool.Dialect() == database.DialectMySQL {
		q = `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`
	}

	rows, err := pool.Query(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
