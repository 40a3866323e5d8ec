package registry

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

type Farmer struct {
	ID        int64     `json:"-"`
	UUID      string    `json:"uuid_id"`
	Name      string    `json:"nombre"`
	CreatedAt time.Time `json:"created_at"`
}

type Harvest struct {
	ID           int64           `json:"id"`
	UUID         string          `json:"uuid_id"`
	FarmerID     int64           `json:"agricultor_id"`
	FarmerUUID   string          `json:"agricultor_uuid"`
	Product      harvest.Product `json:"producto"`
	Tonnes       decimal.Decimal `json:"toneladas"`
	Location     string          `json:"ubicacion"`
	Status       harvest.Status  `json:"estado"`
	InvoiceID    *int64          `json:"factura_id,omitempty"`
	InvoiceUUID  *string         `json:"factura_uuid,omitempty"`
	RegisteredAt time.Time       `json:"fecha"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Lifecycle returns the state-machine view of the harvest.
func (h Harvest) Lifecycle() harvest.Lifecycle {
	lc := harvest.Lifecycle{Status: h.Status}
	if h.InvoiceID != nil {
		ref := harvest.InvoiceRef{ID: *h.InvoiceID}
		if h.InvoiceUUID != nil {
			ref.UUID = *h.InvoiceUUID
		}
		lc.Invoice = &ref
	}
	return lc
}

func (h *Harvest) setLifecycle(lc harvest.Lifecycle) {
	h.Status = lc.Status
	h.InvoiceID, h.InvoiceUUID = nil, nil
	if lc.Invoice != nil {
		id, u := lc.Invoice.ID, lc.Invoice.UUID
		h.InvoiceID = &id
		if u != "" {
			h.InvoiceUUID = &u
		}
	}
}

type NewHarvest struct {
	Farmer   Farmer
	Product  harvest.Product
	Tonnes   decimal.Decimal
	Location string
}

// OutboxEntry is a harvest-created event persisted together with its harvest
// and published after commit.
type OutboxEntry struct {
	ID        int64
	HarvestID int64
	EventType string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}
