package harvest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Stock item names as stored in the inventory.
const (
	ItemFertilizer = "Fertilizante N-P-K"
	ItemSeed       = "Semillas de Maiz"
	ItemWater      = "Agua de Riego"
	ItemPesticide  = "Pesticida Organico"
)

// Usage is the amount of one stock item consumed by a harvest.
type Usage struct {
	Item   string
	Amount decimal.Decimal
}

type multiplier struct {
	item   string
	factor decimal.Decimal
}

var consumptionTable = map[Product][]multiplier{
	ProductMaiz: {
		{ItemFertilizer, decimal.NewFromInt(2)},
		{ItemSeed, decimal.NewFromInt(1)},
		{ItemWater, decimal.NewFromInt(10)},
		{ItemPesticide, decimal.RequireFromString("0.5")},
	},
	ProductArroz: {
		{ItemFertilizer, decimal.RequireFromString("1.5")},
		{ItemWater, decimal.NewFromInt(15)},
		{ItemPesticide, decimal.RequireFromString("0.7")},
	},
	ProductTrigo: {
		{ItemFertilizer, decimal.RequireFromString("1.2")},
		{ItemWater, decimal.NewFromInt(8)},
		{ItemPesticide, decimal.RequireFromString("0.3")},
	},
}

// Consumption lists the stock deltas a harvest of p weighing tonnes causes,
// in table order. The slice is freshly allocated on every call.
func Consumption(p Product, tonnes decimal.Decimal) ([]Usage, error) {
	rows, ok := consumptionTable[p]
	if !ok {
		return nil, fmt.Errorf("consumption %q: %w", p, ErrUnknownProduct)
	}
	out := make([]Usage, 0, len(rows))
	for _, r := range rows {
		out = append(out, Usage{Item: r.item, Amount: tonnes.Mul(r.factor)})
	}
	return out, nil
}
