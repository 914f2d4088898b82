package inventory

import (
	"context"
	"errors"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

// ProductReader is the read side of the products store.
type ProductReader interface {
	Get(ctx context.Context, productID string) (Product, error)
}

// Gate answers availability questions against live stock.
type Gate struct {
	products ProductReader
}

// NewGate creates a Gate.
func NewGate(products ProductReader) *Gate {
	return &Gate{products: products}
}

// Lookup returns a sellable product: missing or inactive products are
// reported as product_unavailable.
func (g *Gate) Lookup(ctx context.Context, productID string) (Product, error) {
	p, err := g.products.Get(ctx, productID)
	switch {
	case errors.Is(err, ErrNotFound):
		return Product{}, apperr.ProductUnavailable(productID)
	case err != nil:
		return Product{}, apperr.Infrastructure("read product", err)
	case !p.Active:
		return Product{}, apperr.ProductUnavailable(productID)
	}
	return p, nil
}

// CheckAvailability reports whether qty units can be sold. Insufficient
// stock is not an error; Available is false instead.
func (g *Gate) CheckAvailability(ctx context.Context, productID string, qty int) (Availability, error) {
	if qty < 1 {
		return Availability{}, apperr.InvalidField("quantity", "must be at least 1")
	}
	p, err := g.Lookup(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		Available:    qty <= p.Stock,
		CurrentStock: p.Stock,
		Product:      p,
	}, nil
}

// ValidateCart checks every line and prices the sellable ones. Only
// infrastructure failures abort the walk.
func (g *Gate) ValidateCart(ctx context.Context, lines []Line) (CartValidation, error) {
	result := CartValidation{Valid: len(lines) > 0, Subtotal: money.Zero}
	for _, line := range lines {
		lr := LineResult{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: money.Zero, LineTotal: money.Zero}
		av, err := g.CheckAvailability(ctx, line.ProductID, line.Quantity)
		switch {
		case apperr.Is(err, apperr.KindProductUnavailable), apperr.Is(err, apperr.KindValidation):
			lr.Status = LineUnavailable
		case err != nil:
			return CartValidation{}, err
		default:
			lr.Name = av.Product.Name
			lr.CurrentStock = av.CurrentStock
			lr.UnitPrice = av.Product.Price
			lr.PriceChanged = !line.DeclaredPrice.IsZero() && !line.DeclaredPrice.Eq(av.Product.Price)
			lr.Status = LineOK
			if !av.Available {
				lr.Status = LineInsufficientStock
			} else {
				lr.LineTotal = av.Product.Price.Times(line.Quantity)
				result.Subtotal = result.Subtotal.Plus(lr.LineTotal)
			}
		}
		if lr.Status != LineOK {
			result.Valid = false
		}
		result.Lines = append(result.Lines, lr)
	}
	return result, nil
}
