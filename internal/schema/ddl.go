package schema

import (
	"strings"

	"github.com/koustreak/relicmart/internal/database"
)

// Storage column names. The item package maps its JSON fields onto these.
const (
	ColID           = "Id"
	ColType         = "Type"
	ColName         = "Name"
	ColPrice        = "Price"
	ColBaseItem     = "Base_Item"
	ColRarity       = "Rarity"
	ColAttunement   = "Attunement"
	ColRequirements = "Requirements"
	ColWeight       = "Weight"
	ColSource       = "Source"
	ColImage        = "Image"
	ColLink         = "Link"
	ColCreatedAt    = "Created_At"
	ColUpdatedAt    = "Updated_At"
)

type columnDef struct {
	name  string
	pg    string
	mysql string
}

// itemColumns is the fixed column set of an item table, in DDL order.
var itemColumns = []columnDef{
	{ColID, "SERIAL PRIMARY KEY", "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"},
	{ColType, "VARCHAR(255) NOT NULL", "VARCHAR(255) NOT NULL"},
	{ColName, "VARCHAR(255) NOT NULL", "VARCHAR(255) NOT NULL"},
	{ColPrice, "NUMERIC(10,2) NOT NULL", "DECIMAL(10,2) NOT NULL"},
	{ColBaseItem, "VARCHAR(255) NOT NULL", "VARCHAR(255) NOT NULL"},
	{ColRarity, "VARCHAR(50) NOT NULL", "VARCHAR(50) NOT NULL"},
	{ColAttunement, "VARCHAR(50)", "VARCHAR(50)"},
	{ColRequirements, "TEXT", "TEXT"},
	{ColWeight, "NUMERIC(10,2)", "DECIMAL(10,2)"},
	{ColSource, "VARCHAR(50) NOT NULL", "VARCHAR(50) NOT NULL"},
	{ColImage, "TEXT", "TEXT"},
	{ColLink, "TEXT", "TEXT"},
	{ColCreatedAt, "TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP", "TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)"},
	{ColUpdatedAt, "TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP", "TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)"},
}

// ColumnNames lists the item table columns in DDL order.
func ColumnNames() []string {
	names := make([]string, len(itemColumns))
	for i, c := range itemColumns {
		names[i] = c.name
	}
	return names
}

// CreateTableSQL renders the idempotent CREATE TABLE for table. The caller
// must have validated table as an identifier.
func CreateTableSQL(d database.Dialect, table string) string {
	defs := make([]string, len(itemColumns))
	for i, c := range itemColumns {
		typ := c.pg
		if d == database.DialectMySQL {
			typ = c.mysql
		}
		defs[i] = "  " + d.Quote(c.name) + " " + typ
	}
	return "CREATE TABLE IF NOT EXISTS " + d.Quote(table) + " (\n" + strings.Join(defs, ",\n") + "\n)"
}
