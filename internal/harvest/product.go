package harvest

import (
	"errors"
	"fmt"
	"strings"
)

// Product is the closed set of crops a harvest can be registered for.
type Product string

const (
	ProductMaiz  Product = "maiz"
	ProductArroz Product = "arroz"
	ProductTrigo Product = "trigo"
)

var ErrUnknownProduct = errors.New("unknown product")

var products = [...]Product{ProductMaiz, ProductArroz, ProductTrigo}

// Products returns the permitted products in declaration order.
func Products() []Product {
	out := make([]Product, len(products))
	copy(out, products[:])
	return out
}

func (p Product) Valid() bool {
	for _, known := range products {
		if p == known {
			return true
		}
	}
	return false
}

func (p Product) String() string { return string(p) }

// DisplayName is the capitalized product name used in alert lines ("Maiz").
func (p Product) DisplayName() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// ParseProduct maps a wire value onto the closed product set. The returned
// error wraps ErrUnknownProduct and names every permitted product.
func ParseProduct(s string) (Product, error) {
	p := Product(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w %q: only %s are permitted", ErrUnknownProduct, s, permittedList())
	}
	return p, nil
}

func permittedList() string {
	ps := Products()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
