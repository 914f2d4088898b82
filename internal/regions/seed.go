package regions

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

//go:embed regions.yaml
var seedYAML []byte

type seedFile struct {
	Regions []seedRegion `yaml:"regions"`
}

type seedRegion struct {
	Code         string `yaml:"code"`
	Name         string `yaml:"name"`
	NameArabic   string `yaml:"name_ar"`
	ShippingCost string `yaml:"shipping_cost"`
	Active       bool   `yaml:"active"`
}

// LoadSeed returns the embedded wilaya list.
func LoadSeed() ([]Region, error) {
	return ParseSeed(seedYAML)
}

// ParseSeed decodes a regions YAML document. Codes must be two digits and
// unique; shipping costs must be non-negative.
func ParseSeed(data []byte) ([]Region, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode regions seed: %w", err)
	}
	seen := make(map[string]bool, len(f.Regions))
	out := make([]Region, 0, len(f.Regions))
	for i, r := range f.Regions {
		if !ValidCode(r.Code) {
			return nil, fmt.Errorf("regions seed: entry %d: invalid code %q", i, r.Code)
		}
		if seen[r.Code] {
			return nil, fmt.Errorf("regions seed: duplicate code %s", r.Code)
		}
		seen[r.Code] = true
		cost, err := money.Parse(r.ShippingCost)
		if err != nil {
			return nil, fmt.Errorf("regions seed: code %s: %w", r.Code, err)
		}
		if cost.IsNegative() {
			return nil, fmt.Errorf("regions seed: code %s: negative shipping cost", r.Code)
		}
		out = append(out, Region{
			Code:         r.Code,
			Name:         r.Name,
			NameArabic:   r.NameArabic,
			ShippingCost: cost,
			Active:       r.Active,
		})
	}
	return out, nil
}
