package fleet

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// LocationStore handles the global locations catalog.
type LocationStore struct{}

const locationColumns = `id, name, country, is_active, created_at, updated_at`

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Country, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (LocationStore) Get(ctx context.Context, q database.Querier, id int64) (Location, error) {
	l, err := scanLocation(q.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
	if err != nil {
		return Location{}, mutation.RowError(err, ErrLocationNotFound, id, "getting location")
	}
	return l, nil
}

func (LocationStore) Insert(ctx context.Context, q database.Querier, _ *int64, in LocationInput) (Location, error) {
	l, err := scanLocation(q.QueryRow(ctx,
		`INSERT INTO locations (name, country, is_active) VALUES ($1, $2, $3)
		 RETURNING `+locationColumns,
		in.Name, in.Country, in.active()))
	if err != nil {
		return Location{}, fmt.Errorf("creating location: %w", err)
	}
	return l, nil
}

func (LocationStore) Update(ctx context.Context, q database.Querier, id int64, in LocationInput) (Location, error) {
	l, err := scanLocation(q.QueryRow(ctx,
		`UPDATE locations SET name = $2, country = $3, is_active = $4, updated_at = now()
		 WHERE id = $1 RETURNING `+locationColumns,
		id, in.Name, in.Country, in.active()))
	if err != nil {
		return Location{}, mutation.RowError(err, ErrLocationNotFound, id, "updating location")
	}
	return l, nil
}

func (LocationStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	return deleteRow(ctx, q, "locations", id, ErrLocationNotFound)
}

var locationList = api.ListSpec{
	From:        "locations",
	Columns:     locationColumns,
	Sortable:    map[string]string{"createdAt": "created_at", "name": "name", "country": "country"},
	Filterable:  map[string]string{"country": "country", "isActive": "is_active"},
	Search:      []string{"name", "country"},
	DefaultSort: "name",
}

func (LocationStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Location, int, error) {
	return api.Page(ctx, q, locationList, p, rs, scanLocation)
}

// DistrictStore handles districts within locations.
type DistrictStore struct{}

const districtColumns = `id, location_id, name, delivery_fee, created_at, updated_at`

func scanDistrict(row pgx.Row) (District, error) {
	var d District
	err := row.Scan(&d.ID, &d.LocationID, &d.Name, &d.DeliveryFee, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (DistrictStore) Get(ctx context.Context, q database.Querier, id int64) (District, error) {
	d, err := scanDistrict(q.QueryRow(ctx, `SELECT `+districtColumns+` FROM districts WHERE id = $1`, id))
	if err != nil {
		return District{}, mutation.RowError(err, ErrDistrictNotFound, id, "getting district")
	}
	return d, nil
}

func (DistrictStore) Insert(ctx context.Context, q database.Querier, _ *int64, in DistrictInput) (District, error) {
	d, err := scanDistrict(q.QueryRow(ctx,
		`INSERT INTO districts (location_id, name, delivery_fee) VALUES ($1, $2, $3)
		 RETURNING `+districtColumns,
		in.LocationID, in.Name, in.DeliveryFee))
	if err != nil {
		return District{}, fmt.Errorf("creating district: %w", err)
	}
	return d, nil
}

func (DistrictStore) Update(ctx context.Context, q database.Querier, id int64, in DistrictInput) (District, error) {
	d, err := scanDistrict(q.QueryRow(ctx,
		`UPDATE districts SET location_id = $2, name = $3, delivery_fee = $4, updated_at = now()
		 WHERE id = $1 RETURNING `+districtColumns,
		id, in.LocationID, in.Name, in.DeliveryFee))
	if err != nil {
		return District{}, mutation.RowError(err, ErrDistrictNotFound, id, "updating district")
	}
	return d, nil
}

func (DistrictStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	return deleteRow(ctx, q, "districts", id, ErrDistrictNotFound)
}

var districtList = api.ListSpec{
	From:        "districts",
	Columns:     districtColumns,
	Sortable:    map[string]string{"createdAt": "created_at", "name": "name", "deliveryFee": "delivery_fee"},
	Filterable:  map[string]string{"locationId": "location_id"},
	Search:      []string{"name"},
	DefaultSort: "name",
}

func (DistrictStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]District, int, error) {
	return api.Page(ctx, q, districtList, p, rs, scanDistrict)
}

// TemplateStore handles the car template catalog.
type TemplateStore struct{}

const templateColumns = `id, brand, model, body_type, seats, doors, transmission, fuel_type, created_at, updated_at`

func scanTemplate(row pgx.Row) (CarTemplate, error) {
	var t CarTemplate
	err := row.Scan(&t.ID, &t.Brand, &t.Model, &t.BodyType, &t.Seats, &t.Doors, &t.Transmission, &t.FuelType, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (TemplateStore) Get(ctx context.Context, q database.Querier, id int64) (CarTemplate, error) {
	t, err := scanTemplate(q.QueryRow(ctx, `SELECT `+templateColumns+` FROM car_templates WHERE id = $1`, id))
	if err != nil {
		return CarTemplate{}, mutation.RowError(err, ErrTemplateNotFound, id, "getting car template")
	}
	return t, nil
}

func (TemplateStore) Insert(ctx context.Context, q database.Querier, _ *int64, in CarTemplateInput) (CarTemplate, error) {
	t, err := scanTemplate(q.QueryRow(ctx,
		`INSERT INTO car_templates (brand, model, body_type, seats, doors, transmission, fuel_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+templateColumns,
		in.Brand, in.Model, in.BodyType, in.Seats, in.Doors, in.Transmission, in.FuelType))
	if err != nil {
		return CarTemplate{}, fmt.Errorf("creating car template: %w", err)
	}
	return t, nil
}

func (TemplateStore) Update(ctx context.Context, q database.Querier, id int64, in CarTemplateInput) (CarTemplate, error) {
	t, err := scanTemplate(q.QueryRow(ctx,
		`UPDATE car_templates
		 SET brand = $2, model = $3, body_type = $4, seats = $5, doors = $6,
		     transmission = $7, fuel_type = $8, updated_at = now()
		 WHERE id = $1 RETURNING `+templateColumns,
		id, in.Brand, in.Model, in.BodyType, in.Seats, in.Doors, in.Transmission, in.FuelType))
	if err != nil {
		return CarTemplate{}, mutation.RowError(err, ErrTemplateNotFound, id, "updating car template")
	}
	return t, nil
}

func (TemplateStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	return deleteRow(ctx, q, "car_templates", id, ErrTemplateNotFound)
}

var templateList = api.ListSpec{
	From:    "car_templates",
	Columns: templateColumns,
	Sortable: map[string]string{
		"createdAt": "created_at", "brand": "brand", "model": "model", "seats": "seats",
	},
	Filterable: map[string]string{
		"bodyType": "body_type", "transmission": "transmission", "fuelType": "fuel_type", "seats": "seats",
	},
	Search:      []string{"brand", "model"},
	DefaultSort: "brand",
}

func (TemplateStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]CarTemplate, int, error) {
	return api.Page(ctx, q, templateList, p, rs, scanTemplate)
}

// deleteRow removes one row of a trusted table.
func deleteRow(ctx context.Context, q database.Querier, table string, id int64, notFound error) error {
	tag, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", notFound, id)
	}
	return nil
}
