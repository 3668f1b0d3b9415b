package fleet

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CatalogCar is the public view of a car on offer.
type CatalogCar struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	Brand      string          `json:"brand"`
	Model      string          `json:"model"`
	Year       int             `json:"year"`
	Color      string          `json:"color"`
	LocationID int64           `json:"location_id"`
	ImageKey   string          `json:"image_key"`
	PriceFrom  decimal.Decimal `json:"price_from"`
}

type CatalogGroup struct {
	BodyType string       `json:"body_type"`
	Cars     []CatalogCar `json:"cars"`
}

// GroupByBodyType buckets cars by template body type. Groups follow
// BodyTypes order, unknown types come last alphabetically, and empty
// groups are omitted. Cars keep their input order within a group.
func GroupByBodyType(cars []Car) []CatalogGroup {
	buckets := make(map[string][]CatalogCar)
	for _, c := range cars {
		buckets[c.BodyType] = append(buckets[c.BodyType], CatalogCar{
			ID:         c.ID,
			CompanyID:  c.CompanyID,
			Brand:      c.Brand,
			Model:      c.Model,
			Year:       c.Year,
			Color:      c.Color,
			LocationID: c.LocationID,
			ImageKey:   c.ImageKey,
			PriceFrom:  c.Pricing.Lowest(),
		})
	}

	groups := make([]CatalogGroup, 0, len(buckets))
	for _, bt := range BodyTypes {
		if cars, ok := buckets[bt]; ok {
			groups = append(groups, CatalogGroup{BodyType: bt, Cars: cars})
			delete(buckets, bt)
		}
	}

	rest := make([]string, 0, len(buckets))
	for bt := range buckets {
		rest = append(rest, bt)
	}
	sort.Strings(rest)
	for _, bt := range rest {
		groups = append(groups, CatalogGroup{BodyType: bt, Cars: buckets[bt]})
	}
	return groups
}
