package record

import "github.com/shopspring/decimal"

// Product is one entry of the static product catalog.
type Product struct {
	SKU             string
	Name            string
	Barcode         string
	ExpectedWeightG float64
	Price           decimal.Decimal
	EPCRange        string
}

// Catalog is a SKU-indexed product lookup shared read-only by detectors.
type Catalog struct {
	products map[string]Product
}

func NewCatalog(products []Product) *Catalog {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.SKU] = p
	}
	return &Catalog{products: m}
}

func (c *Catalog) Lookup(sku string) (Product, bool) {
	p, ok := c.products[sku]
	return p, ok
}

// PriceOf returns the catalog price as a float for scoring math, or 0 when
// the SKU is unknown.
func (c *Catalog) PriceOf(sku string) float64 {
	p, ok := c.products[sku]
	if !ok {
		return 0
	}
	f, _ := p.Price.Float64()
	return f
}

func (c *Catalog) Len() int { return len(c.products) }

// Customer is one row of the customer reference data.
type Customer struct {
	ID      string
	Name    string
	Age     string
	Address string
	Phone   string
}
