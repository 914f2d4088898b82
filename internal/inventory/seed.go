package inventory

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

// seedProduct keeps the price as text so YAML never rounds it through a float.
type seedProduct struct {
	Product `yaml:",inline"`
	Price   string `yaml:"price"`
}

// ParseSeed decodes a products YAML document for cmd/seed.
func ParseSeed(data []byte) ([]Product, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode products seed: %w", err)
	}
	out := make([]Product, 0, len(f.Products))
	seen := map[string]bool{}
	for i, sp := range f.Products {
		p := sp.Product
		if _, err := uuid.Parse(p.ProductID); err != nil {
			return nil, fmt.Errorf("products seed: entry %d: product_id must be a UUID", i)
		}
		if seen[p.ProductID] {
			return nil, fmt.Errorf("products seed: duplicate product %s", p.ProductID)
		}
		seen[p.ProductID] = true
		price, err := money.Parse(sp.Price)
		if err != nil {
			return nil, fmt.Errorf("products seed: %s: %w", p.ProductID, err)
		}
		if price.IsNegative() || p.Stock < 0 {
			return nil, fmt.Errorf("products seed: %s: price and stock must be >= 0", p.ProductID)
		}
		p.Price = price
		out = append(out, p)
	}
	return out, nil
}
