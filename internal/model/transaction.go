package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a recorded trade. Only completed trades are ever written.
type Status string

const (
	StatusCompleted Status = "completed"
)

// Role is the side an account took in a trade.
// Keep these values stable; they are part of the API and CSV output.
type Role string

const (
	RoleBought Role = "bought"
	RoleSold   Role = "sold"
)

// Transaction is an immutable record of one settled trade.
type Transaction struct {
	ID           string          `json:"id"`
	BuyerID      string          `json:"buyer_id"`
	BuyerGridID  string          `json:"buyer_grid_id"`
	SellerID     string          `json:"seller_id"`
	SellerGridID string          `json:"seller_grid_id"`
	Units        int64           `json:"units"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       Status          `json:"status"`
}

// RoleFor returns the role accountID played, or "" if it was not a party.
func (t Transaction) RoleFor(accountID string) Role {
	switch accountID {
	case t.BuyerID:
		return RoleBought
	case t.SellerID:
		return RoleSold
	default:
		return ""
	}
}

// HistoryEntry is a Transaction seen from one party, tagged with the counter-party.
type HistoryEntry struct {
	Transaction
	Role                 Role   `json:"role"`
	CounterpartyID       string `json:"counterparty_id"`
	CounterpartyName     string `json:"counterparty_name"`
	CounterpartyGridName string `json:"counterparty_grid_name"`
}

// History is an account's trade list plus running totals.
type History struct {
	Entries          []HistoryEntry `json:"transactions"`
	TotalCount       int            `json:"total_transactions"`
	TotalUnitsBought int64          `json:"total_units_bought"`
	TotalUnitsSold   int64          `json:"total_units_sold"`
}

// MonthlySummary is one calendar month of trading activity for an account.
type MonthlySummary struct {
	Month  string `json:"month"` // YYYY-MM, UTC
	Bought int64  `json:"bought"`
	Sold   int64  `json:"sold"`
}
