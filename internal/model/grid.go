package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Location is a grid's position as reported by the owner.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return errors.New("latitude must be in [-90, 90]")
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return errors.New("longitude must be in [-180, 180]")
	}
	return nil
}

// Grid is one producer's energy account.
// Units are whole energy units; UnitsForSale is the part of Units listed on the market.
//
// Invariant: 0 <= UnitsForSale <= Units.
type Grid struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Name      string   `json:"grid_name"`
	Location  Location `json:"location"`
	Units     int64    `json:"units"`
	ForSale   int64    `json:"units_for_sell"`
	Available bool     `json:"available"`

	// Provisioned marks a placeholder grid created for a buyer who had none.
	// The owner's first CreateGrid fills it in instead of failing.
	Provisioned bool `json:"provisioned"`

	// PricePerUnit overrides the process-wide price when non-zero.
	PricePerUnit decimal.Decimal `json:"price_per_unit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the unit invariant. It does not touch identity fields.
func (g Grid) Validate() error {
	if g.Units < 0 {
		return errors.New("units must be >= 0")
	}
	if g.ForSale < 0 {
		return errors.New("units_for_sell must be >= 0")
	}
	if g.ForSale > g.Units {
		return errors.New("units_for_sell must not exceed units")
	}
	if g.PricePerUnit.IsNegative() {
		return errors.New("price_per_unit must be >= 0")
	}
	return nil
}

// Listed reports whether the grid belongs in the public offer listing.
func (g Grid) Listed() bool {
	return g.Available && g.ForSale > 0
}

// Offer is a Grid as seen from the marketplace, annotated with the owner's display name.
type Offer struct {
	GridID    string          `json:"grid_id"`
	GridName  string          `json:"grid_name"`
	Location  Location        `json:"location"`
	ForSale   int64           `json:"units_for_sell"`
	OwnerID   string          `json:"user"`
	OwnerName string          `json:"user_name"`
	Price     decimal.Decimal `json:"price_per_unit"`
}

type UnitStatus struct {
	Units   int64 `json:"units"`
	ForSale int64 `json:"units_for_sell"`
}
