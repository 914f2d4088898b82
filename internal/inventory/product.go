// Package inventory reads product stock and builds the conditional writes
// that move it inside order transactions.
package inventory

import (
	"time"

	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

// Product is the inventory view of a catalog product.
type Product struct {
	ProductID string       `dynamodbav:"product_id" json:"product_id" yaml:"product_id"`
	Name      string       `dynamodbav:"name" json:"name" yaml:"name"`
	Price     money.Amount `dynamodbav:"price" json:"price" yaml:"-"`
	Stock     int          `dynamodbav:"stock" json:"stock" yaml:"stock"`
	Active    bool         `dynamodbav:"active" json:"active" yaml:"active"`
	ImageRef  string       `dynamodbav:"image_ref,omitempty" json:"image_ref,omitempty" yaml:"image_ref"`
	UpdatedAt time.Time    `dynamodbav:"updated_at" json:"updated_at" yaml:"-"`
}

// Availability is the answer to "can qty units of this product be sold now".
type Availability struct {
	Available    bool    `json:"available"`
	CurrentStock int     `json:"current_stock"`
	Product      Product `json:"product"`
}

// Line is a requested product quantity with the price the client last saw.
type Line struct {
	ProductID     string       `json:"product_id"`
	Quantity      int          `json:"quantity"`
	DeclaredPrice money.Amount `json:"unit_price"`
}

// Line statuses reported by ValidateCart.
const (
	LineOK                = "ok"
	LineInsufficientStock = "insufficient_stock"
	LineUnavailable       = "unavailable"
)

// LineResult is the per-line outcome of ValidateCart.
type LineResult struct {
	ProductID    string       `json:"product_id"`
	Name         string       `json:"name,omitempty"`
	Quantity     int          `json:"quantity"`
	Status       string       `json:"status"`
	CurrentStock int          `json:"current_stock"`
	UnitPrice    money.Amount `json:"unit_price"`
	LineTotal    money.Amount `json:"line_total"`
	PriceChanged bool         `json:"price_changed"`
}

// CartValidation reports every line; Valid is true only when all are ok.
type CartValidation struct {
	Valid    bool         `json:"valid"`
	Lines    []LineResult `json:"lines"`
	Subtotal money.Amount `json:"subtotal"`
}
