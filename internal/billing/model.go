package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

// Invoice bills one harvest. It references the harvest by both ids so callers
// can use whichever identifier they hold.
type Invoice struct {
	ID          int64           `json:"id"`
	UUID        string          `json:"uuid_id"`
	HarvestID   int64           `json:"cosecha_id"`
	HarvestUUID string          `json:"cosecha_uuid"`
	Amount      decimal.Decimal `json:"monto"`
	Paid        bool            `json:"pagada"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (i Invoice) Ref() harvest.InvoiceRef {
	return harvest.InvoiceRef{ID: i.ID, UUID: i.UUID}
}

type NewInvoice struct {
	HarvestID   int64
	HarvestUUID string
	Amount      decimal.Decimal
}
