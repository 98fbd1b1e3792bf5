package models

import "powershare-ledger/internal/model"

// CreateGridResponse is returned after a grid is registered
type CreateGridResponse struct {
	Message string     `json:"message"`
	GridID  string     `json:"grid_id"`
	Grid    model.Grid `json:"grid"`
}

// UnitsResponse is returned by the unit and offer update endpoints
type UnitsResponse struct {
	Message      string `json:"message"`
	Units        int64  `json:"units"`
	UnitsForSell int64  `json:"units_for_sell"`
	Available    bool   `json:"available"`
}

// BuyResponse is returned after a successful purchase
type BuyResponse struct {
	Message            string            `json:"message"`
	Transaction        model.Transaction `json:"transaction"`
	BuyerUnits         int64             `json:"buyer_units"`
	SellerUnitsForSell int64             `json:"seller_units_for_sell"`
	Currency           string            `json:"currency"`
}

// OfferWithDistance is one marketplace entry, with the distance from the
// caller's position when one was supplied.
type OfferWithDistance struct {
	model.Offer
	DistanceKM *float64 `json:"distance_km,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
