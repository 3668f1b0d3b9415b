// Package fleet holds the global catalogs (locations, districts, car
// templates) and each company's cars with their seasonal pricing.
package fleet

import (
	"fmt"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/shopspring/decimal"
)

var (
	ErrLocationNotFound = fmt.Errorf("%w: location", api.ErrNotFound)
	ErrDistrictNotFound = fmt.Errorf("%w: district", api.ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("%w: car template", api.ErrNotFound)
	ErrCarNotFound      = fmt.Errorf("%w: car", api.ErrNotFound)
)

// BodyTypes in catalog display order.
var BodyTypes = []string{"sedan", "suv", "hatchback", "coupe", "convertible", "minivan", "pickup", "wagon"}

const (
	CarAvailable   = "available"
	CarRented      = "rented"
	CarMaintenance = "maintenance"
	CarInactive    = "inactive"
)

// globalRecord is embedded by catalog rows that belong to no company.
type globalRecord struct{}

func (globalRecord) TenantID() *int64 { return nil }
func (globalRecord) OwnerID() string  { return "" }

type Location struct {
	globalRecord
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l Location) RecordID() int64 { return l.ID }

type LocationInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Country  string `json:"country" validate:"required,max=80"`
	IsActive *bool  `json:"is_active"`
}

func (in LocationInput) active() bool { return in.IsActive == nil || *in.IsActive }

type District struct {
	globalRecord
	ID          int64           `json:"id"`
	LocationID  int64           `json:"location_id"`
	Name        string          `json:"name"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (d District) RecordID() int64 { return d.ID }

type DistrictInput struct {
	LocationID  int64           `json:"location_id" validate:"required,gt=0"`
	Name        string          `json:"name" validate:"required,max=120"`
	DeliveryFee decimal.Decimal `json:"delivery_fee" validate:"gte=0"`
}

func (in DistrictInput) References() []mutation.Reference {
	return []mutation.Reference{mutation.Ref("location_id", "locations", in.LocationID)}
}

type CarTemplate struct {
	globalRecord
	ID           int64     `json:"id"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	BodyType     string    `json:"body_type"`
	Seats        int       `json:"seats"`
	Doors        int       `json:"doors"`
	Transmission string    `json:"transmission"`
	FuelType     string    `json:"fuel_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t CarTemplate) RecordID() int64 { return t.ID }

type CarTemplateInput struct {
	Brand        string `json:"brand" validate:"required,max=80"`
	Model        string `json:"model" validate:"required,max=80"`
	BodyType     string `json:"body_type" validate:"required,oneof=sedan suv hatchback coupe convertible minivan pickup wagon"`
	Seats        int    `json:"seats" validate:"required,min=1,max=60"`
	Doors        int    `json:"doors" validate:"min=0,max=6"`
	Transmission string `json:"transmission" validate:"required,oneof=manual automatic"`
	FuelType     string `json:"fuel_type" validate:"required,oneof=petrol diesel hybrid electric"`
}

// Car is one vehicle of a company. The template fields are joined in for
// display and ignored on write.
type Car struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	TemplateID  int64     `json:"template_id"`
	LocationID  int64     `json:"location_id"`
	PlateNumber string    `json:"plate_number"`
	Year        int       `json:"year"`
	Color       string    `json:"color"`
	Mileage     int       `json:"mileage"`
	Status      string    `json:"status"`
	ImageKey    string    `json:"image_key"`
	Pricing     Pricing   `json:"pricing"`
	Brand       string    `json:"brand"`
	Model       string    `json:"model"`
	BodyType    string    `json:"body_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c Car) RecordID() int64 { return c.ID }

func (c Car) TenantID() *int64 {
	id := c.CompanyID
	return &id
}

func (c Car) OwnerID() string { return "" }

// VisibleToSelf limits callers without a company to cars on offer.
func (c Car) VisibleToSelf() bool { return c.Status == CarAvailable }

type CarInput struct {
	CompanyID   *int64  `json:"company_id" validate:"omitempty,gt=0"`
	TemplateID  int64   `json:"template_id" validate:"required,gt=0"`
	LocationID  int64   `json:"location_id" validate:"required,gt=0"`
	PlateNumber string  `json:"plate_number" validate:"required,max=20"`
	Year        int     `json:"year" validate:"required,min=1950,max=2100"`
	Color       string  `json:"color" validate:"max=40"`
	Mileage     int     `json:"mileage" validate:"min=0"`
	Status      string  `json:"status" validate:"omitempty,oneof=available rented maintenance inactive"`
	ImageKey    string  `json:"image_key" validate:"max=300"`
	Pricing     Pricing `json:"pricing"`
}

func (in CarInput) RequestedCompanyID() *int64 { return in.CompanyID }

func (in CarInput) Validate() error { return in.Pricing.Validate() }

func (in CarInput) References() []mutation.Reference {
	return []mutation.Reference{
		mutation.Ref("template_id", "car_templates", in.TemplateID),
		mutation.Ref("location_id", "locations", in.LocationID),
	}
}

func (in CarInput) status() string {
	if in.Status == "" {
		return CarAvailable
	}
	return in.Status
}
