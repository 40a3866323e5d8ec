package harvest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var unitPrices = map[Product]decimal.Decimal{
	ProductMaiz:  decimal.NewFromInt(1000),
	ProductArroz: decimal.NewFromInt(800),
	ProductTrigo: decimal.NewFromInt(600),
}

// UnitPrice returns the fixed price per tonne for p.
func UnitPrice(p Product) (decimal.Decimal, error) {
	price, ok := unitPrices[p]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price %q: %w", p, ErrUnknownProduct)
	}
	return price, nil
}

// Amount prices a harvest: tonnes x unit price, exact.
func Amount(p Product, tonnes decimal.Decimal) (decimal.Decimal, error) {
	price, err := UnitPrice(p)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return tonnes.Mul(price), nil
}
