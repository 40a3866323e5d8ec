package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"nombre"`
	Quantity  decimal.Decimal `json:"stock"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Outcome describes what happened to one stock item while applying an event.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeMissingItem    Outcome = "missing_item"
)

type ItemResult struct {
	Item    string
	Amount  decimal.Decimal
	Outcome Outcome
	// Remaining is the stock read back after the decrement; only set when applied.
	Remaining decimal.Decimal
}
