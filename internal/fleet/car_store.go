package fleet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// CarStore handles cars. Reads join the template for display fields.
type CarStore struct{}

func NewCarStore() *CarStore {
	return &CarStore{}
}

const carColumns = `c.id, c.company_id, c.template_id, c.location_id, c.plate_number, c.year,
	c.color, c.mileage, c.status, c.image_key, c.pricing,
	t.brand, t.model, t.body_type, c.created_at, c.updated_at`

const carFrom = `cars c JOIN car_templates t ON t.id = c.template_id`

func scanCar(row pgx.Row) (Car, error) {
	var c Car
	var pricing []byte
	err := row.Scan(&c.ID, &c.CompanyID, &c.TemplateID, &c.LocationID, &c.PlateNumber, &c.Year,
		&c.Color, &c.Mileage, &c.Status, &c.ImageKey, &pricing,
		&c.Brand, &c.Model, &c.BodyType, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Car{}, err
	}
	if err := json.Unmarshal(pricing, &c.Pricing); err != nil {
		return Car{}, fmt.Errorf("decoding pricing of car %d: %w", c.ID, err)
	}
	return c, nil
}

func (s *CarStore) Get(ctx context.Context, q database.Querier, id int64) (Car, error) {
	c, err := scanCar(q.QueryRow(ctx, `SELECT `+carColumns+` FROM `+carFrom+` WHERE c.id = $1`, id))
	if err != nil {
		return Car{}, mutation.RowError(err, ErrCarNotFound, id, "getting car")
	}
	return c, nil
}

func (s *CarStore) Insert(ctx context.Context, q database.Querier, companyID *int64, in CarInput) (Car, error) {
	if companyID == nil {
		return Car{}, api.NewValidationError("company_id", "is required")
	}
	pricing, err := json.Marshal(in.Pricing)
	if err != nil {
		return Car{}, fmt.Errorf("encoding pricing: %w", err)
	}

	var id int64
	err = q.QueryRow(ctx,
		`INSERT INTO cars (company_id, template_id, location_id, plate_number, year, color, mileage, status, image_key, pricing)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		*companyID, in.TemplateID, in.LocationID, in.PlateNumber, in.Year,
		in.Color, in.Mileage, in.status(), in.ImageKey, pricing,
	).Scan(&id)
	if err != nil {
		return Car{}, fmt.Errorf("creating car: %w", err)
	}
	return s.Get(ctx, q, id)
}

// Update replaces every mutable column; the company never changes.
func (s *CarStore) Update(ctx context.Context, q database.Querier, id int64, in CarInput) (Car, error) {
	pricing, err := json.Marshal(in.Pricing)
	if err != nil {
		return Car{}, fmt.Errorf("encoding pricing: %w", err)
	}

	tag, err := q.Exec(ctx,
		`UPDATE cars
		 SET template_id = $2, location_id = $3, plate_number = $4, year = $5, color = $6,
		     mileage = $7, status = $8, image_key = $9, pricing = $10, updated_at = now()
		 WHERE id = $1`,
		id, in.TemplateID, in.LocationID, in.PlateNumber, in.Year, in.Color,
		in.Mileage, in.status(), in.ImageKey, pricing,
	)
	if err != nil {
		return Car{}, fmt.Errorf("updating car: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Car{}, fmt.Errorf("%w %d", ErrCarNotFound, id)
	}
	return s.Get(ctx, q, id)
}

func (s *CarStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	return deleteRow(ctx, q, "cars", id, ErrCarNotFound)
}

var carList = api.ListSpec{
	From:    carFrom,
	Columns: carColumns,
	Sortable: map[string]string{
		"createdAt":   "c.created_at",
		"year":        "c.year",
		"mileage":     "c.mileage",
		"plateNumber": "c.plate_number",
		"brand":       "t.brand",
	},
	Filterable: map[string]string{
		"status":     "c.status",
		"locationId": "c.location_id",
		"templateId": "c.template_id",
		"companyId":  "c.company_id",
		"bodyType":   "t.body_type",
	},
	Search:       []string{"c.plate_number", "t.brand", "t.model", "c.color"},
	DefaultSort:  "c.created_at",
	TenantColumn: "c.company_id",
}

func (s *CarStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Car, int, error) {
	return api.Page(ctx, q, carList, p, rs, scanCar)
}

// maxCatalogCars bounds one catalog response.
const maxCatalogCars = 500

// ListAvailable returns cars on offer within rs, optionally at one location.
func (s *CarStore) ListAvailable(ctx context.Context, q database.Querier, rs api.Restriction, locationID *int64) ([]Car, error) {
	p := api.ListParams{Page: 1, PageSize: maxCatalogCars, SortBy: "brand", SortOrder: "asc"}
	p.Filters = map[string]any{"status": CarAvailable}
	if locationID != nil {
		p.Filters["locationId"] = *locationID
	}

	cars, _, err := api.Page(ctx, q, carList, p, rs, scanCar)
	return cars, err
}

// availableOnly restricts self-scoped car reads to cars on offer.
func availableOnly(string) api.Restriction {
	return api.Restriction{Extra: []api.Predicate{{SQL: "c.status = ?", Arg: CarAvailable}}}
}
