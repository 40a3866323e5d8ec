package contracts

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harvestUUID = "f1e2d3c4-b5a6-4988-99aa-bbccddeeff11"

func TestHarvestCreatedWireShape(t *testing.T) {
	body, err := EncodeHarvestCreated(HarvestCreated{
		HarvestID:   12,
		HarvestUUID: harvestUUID,
		Producto:    "arroz",
		Toneladas:   decimal.RequireFromString("12.5"),
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, float64(12), raw["harvestId"])
	assert.Equal(t, harvestUUID, raw["harvestUuid"])
	assert.Equal(t, "arroz", raw["producto"])
	assert.Equal(t, 12.5, raw["toneladas"], "toneladas must be a JSON number")
}

func TestDecodeHarvestCreated(t *testing.T) {
	tests := map[string]struct {
		body    string
		wantErr bool
		tonnes  string
	}{
		"numeric tonnes":         {body: `{"harvestId":1,"harvestUuid":"` + harvestUUID + `","producto":"maiz","toneladas":10}`, tonnes: "10"},
		"quoted tonnes":          {body: `{"harvestId":1,"harvestUuid":"` + harvestUUID + `","producto":"maiz","toneladas":"2.75"}`, tonnes: "2.75"},
		"unknown product passes": {body: `{"harvestId":1,"harvestUuid":"` + harvestUUID + `","producto":"soja","toneladas":1}`, tonnes: "1"},
		"malformed json":         {body: `{"harvestId":`, wantErr: true},
		"zero tonnes":            {body: `{"harvestId":1,"harvestUuid":"` + harvestUUID + `","producto":"maiz","toneladas":0}`, wantErr: true},
		"missing tonnes":         {body: `{"harvestId":1,"harvestUuid":"` + harvestUUID + `","producto":"maiz"}`, wantErr: true},
		"missing harvest id":     {body: `{"harvestUuid":"` + harvestUUID + `","producto":"maiz","toneladas":1}`, wantErr: true},
		"bad uuid":               {body: `{"harvestId":1,"harvestUuid":"nope","producto":"maiz","toneladas":1}`, wantErr: true},
		"missing product":        {body: `{"harvestId":1,"harvestUuid":"` + harvestUUID + `","toneladas":1}`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ev, err := DecodeHarvestCreated([]byte(tc.body))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidHarvestCreated), "err=%v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, ev.Toneladas.Equal(decimal.RequireFromString(tc.tonnes)), "tonnes=%s", ev.Toneladas)
		})
	}
}
