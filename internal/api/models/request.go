package models

import "powershare-ledger/internal/model"

// CreateGridRequest represents the request body for POST /api/v1/grid/insert_new
type CreateGridRequest struct {
	GridName     string          `json:"grid_name" binding:"required"`
	Location     *model.Location `json:"location" binding:"required"`
	Units        int64           `json:"units"`
	Available    bool            `json:"available"`
	PricePerUnit string          `json:"price_per_unit,omitempty"` // decimal string; empty = market price
}

// UnitsRequest carries a unit count for sell_units and update_units.
// Units is a pointer so an explicit 0 is distinguishable from a missing field.
type UnitsRequest struct {
	Units *int64 `json:"units" binding:"required"`
}

// AvailabilityRequest represents the request body for POST /api/v1/grid/availability
type AvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// BuyRequest represents the request body for POST /api/v1/energypool/buy
type BuyRequest struct {
	GridID string `json:"grid_id" binding:"required"`
	Units  int64  `json:"units"`
}
