// Package shipping turns a wilaya code into a home-delivery cost.
package shipping

import (
	"context"

	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
)

// RegionLookup is the catalog dependency.
type RegionLookup interface {
	GetByCode(ctx context.Context, code string) (regions.Region, error)
}

// Quote is the resolved cost for one region code.
type Quote struct {
	RegionCode string       `json:"region_code"`
	RegionName string       `json:"region_name,omitempty"`
	Cost       money.Amount `json:"shipping_cost"`
	Fallback   bool         `json:"fallback"`
}

// Resolver maps region codes to costs. It never fails: any code it cannot
// price gets the fallback cost so checkout never dead-ends on region data.
type Resolver struct {
	regions  RegionLookup
	fallback money.Amount
	logger   *zap.Logger
}

// NewResolver builds a Resolver with the documented fallback cost.
func NewResolver(lookup RegionLookup, fallback money.Amount, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{regions: lookup, fallback: fallback, logger: logger}
}

// Resolve prices a region code.
func (r *Resolver) Resolve(ctx context.Context, code string) Quote {
	region, err := r.regions.GetByCode(ctx, code)
	switch {
	case err == nil && region.Active:
		return Quote{RegionCode: region.Code, RegionName: region.Name, Cost: region.ShippingCost}
	case err == nil:
		return Quote{RegionCode: code, RegionName: region.Name, Cost: r.fallback, Fallback: true}
	case apperr.Is(err, apperr.KindInfrastructure):
		logging.FromContext(ctx, r.logger).Warn("region lookup failed, using fallback shipping cost",
			zap.String("region_code", code), zap.Error(err))
	}
	return Quote{RegionCode: code, Cost: r.fallback, Fallback: true}
}
