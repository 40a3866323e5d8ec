// Package contracts holds the wire contracts exchanged between the registry,
// billing and inventory services.
package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventTypeHarvestCreated is carried in the AMQP Type property.
const EventTypeHarvestCreated = "HarvestCreated"

var ErrInvalidHarvestCreated = errors.New("invalid HarvestCreated payload")

// HarvestCreated announces a newly registered harvest. It is immutable once
// published and may be delivered more than once to each consumer queue.
//
// Producto is kept as the raw wire string: consumers decide how strictly to
// treat values outside the product set.
type HarvestCreated struct {
	HarvestID   int64           `json:"harvestId"`
	HarvestUUID string          `json:"harvestUuid"`
	Producto    string          `json:"producto"`
	Toneladas   decimal.Decimal `json:"toneladas"`
}

type harvestCreatedWire struct {
	HarvestID   int64           `json:"harvestId"`
	HarvestUUID string          `json:"harvestUuid"`
	Producto    string          `json:"producto"`
	Toneladas   json.RawMessage `json:"toneladas"`
}

// MarshalJSON renders toneladas as a JSON number rather than a string.
func (e HarvestCreated) MarshalJSON() ([]byte, error) {
	return json.Marshal(harvestCreatedWire{
		HarvestID:   e.HarvestID,
		HarvestUUID: e.HarvestUUID,
		Producto:    e.Producto,
		Toneladas:   json.RawMessage(e.Toneladas.String()),
	})
}

func (e *HarvestCreated) UnmarshalJSON(b []byte) error {
	var w harvestCreatedWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.HarvestID = w.HarvestID
	e.HarvestUUID = w.HarvestUUID
	e.Producto = w.Producto
	e.Toneladas = decimal.Decimal{}
	if len(w.Toneladas) == 0 || bytes.Equal(w.Toneladas, []byte("null")) {
		return nil
	}
	return e.Toneladas.UnmarshalJSON(w.Toneladas)
}

// Validate checks the fields every consumer relies on. The product is not
// checked here.
func (e HarvestCreated) Validate() error {
	if e.HarvestID <= 0 {
		return fmt.Errorf("%w: harvestId must be positive", ErrInvalidHarvestCreated)
	}
	if _, err := uuid.Parse(e.HarvestUUID); err != nil {
		return fmt.Errorf("%w: harvestUuid: %v", ErrInvalidHarvestCreated, err)
	}
	if e.Producto == "" {
		return fmt.Errorf("%w: missing producto", ErrInvalidHarvestCreated)
	}
	if !e.Toneladas.IsPositive() {
		return fmt.Errorf("%w: toneladas must be > 0", ErrInvalidHarvestCreated)
	}
	return nil
}

func EncodeHarvestCreated(e HarvestCreated) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal HarvestCreated: %w", err)
	}
	return body, nil
}

// DecodeHarvestCreated parses and validates a message body.
func DecodeHarvestCreated(body []byte) (HarvestCreated, error) {
	var e HarvestCreated
	if err := json.Unmarshal(body, &e); err != nil {
		return HarvestCreated{}, fmt.Errorf("%w: %v", ErrInvalidHarvestCreated, err)
	}
	if err := e.Validate(); err != nil {
		return HarvestCreated{}, err
	}
	return e, nil
}
