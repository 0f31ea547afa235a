package models

import "time"

// Car is a rentable vehicle. IsAvailable is the owner's manual switch and says
// nothing about date occupancy.
type Car struct {
	ID              int64     `json:"id" yaml:"id"`
	OwnerID         string    `json:"owner_id" yaml:"owner_id"`
	Brand           string    `json:"brand" yaml:"brand"`
	Model           string    `json:"model" yaml:"model"`
	Category        string    `json:"category" yaml:"category"`
	Year            int       `json:"year" yaml:"year"`
	SeatingCapacity int       `json:"seating_capacity" yaml:"seating_capacity"`
	FuelType        string    `json:"fuel_type" yaml:"fuel_type"`
	Transmission    string    `json:"transmission" yaml:"transmission"`
	Location        string    `json:"location" yaml:"location"`
	PricePerDay     float64   `json:"price_per_day" yaml:"price_per_day"`
	Description     string    `json:"description" yaml:"description"`
	IsAvailable     bool      `json:"is_available" yaml:"is_available"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// DisplayName is the label used in exports and spreadsheet rows.
func (c *Car) DisplayName() string {
	if c.Model == "" {
		return c.Brand
	}
	return c.Brand + " " + c.Model
}

// CarFilter narrows catalog listings. Zero values mean "any".
type CarFilter struct {
	Location      string
	OwnerID       string
	Category      string
	OnlyAvailable bool
}
