// Package item is the magic-item catalogue: the Item model, the partial
// payload clients send to create or edit one, and the Repository that runs
// every query against whatever database configuration is active at the
// time of the call.
package item

import (
	"time"

	"github.com/koustreak/relicmart/internal/schema"
)

// Item is one catalogue entry as stored and as returned to clients.
type Item struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	BaseItem     string    `json:"baseItem"`
	Rarity       string    `json:"rarity"`
	Attunement   *string   `json:"attunement"`
	Requirements *string   `json:"requirements"`
	Weight       *float64  `json:"weight"`
	Source       string    `json:"source"`
	Image        *string   `json:"image"`
	Link         *string   `json:"link"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Rarities are the tiers clients offer in their pickers. The server stores
// whatever rarity it is given.
var Rarities = []string{"Common", "Uncommon", "Rare", "Very Rare", "Legendary"}

// selectColumns is the read order shared by every query that returns items.
var selectColumns = []string{
	schema.ColID,
	schema.ColType,
	schema.ColName,
	schema.ColPrice,
	schema.ColBaseItem,
	schema.ColRarity,
	schema.ColAttunement,
	schema.ColRequirements,
	schema.ColWeight,
	schema.ColSource,
	schema.ColImage,
	schema.ColLink,
	schema.ColCreatedAt,
	schema.ColUpdatedAt,
}

// searchColumns are matched by ListOptions.Query.
var searchColumns = []string{
	schema.ColName,
	schema.ColType,
	schema.ColBaseItem,
	schema.ColRarity,
	schema.ColSource,
	schema.ColRequirements,
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (Item, error) {
	var (
		it               Item
		created, updated *time.Time
	)
	err := row.Scan(
		&it.ID,
		&it.Type,
		&it.Name,
		&it.Price,
		&it.BaseItem,
		&it.Rarity,
		&it.Attunement,
		&it.Requirements,
		&it.Weight,
		&it.Source,
		&it.Image,
		&it.Link,
		&created,
		&updated,
	)
	if err != nil {
		return Item{}, err
	}
	if created != nil {
		it.CreatedAt = created.UTC()
	}
	if updated != nil {
		it.UpdatedAt = updated.UTC()
	}
	return it, nil
}
