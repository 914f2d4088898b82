package checkout

import (
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/shipping"
)

// Line is a requested product. DeclaredPrice is what the client showed and
// is never used for totals.
type Line struct {
	ProductID     string
	Quantity      int
	DeclaredPrice money.Amount
}

// Input is one order submission. An empty CustomerID makes it a guest order.
type Input struct {
	CustomerID     string
	GuestSession   string
	Contact        orders.Contact
	Address        orders.Address
	Items          []Line
	PaymentMethod  string
	DeclaredTotal  *money.Amount
	IdempotencyKey string
	CorrelationID  string
}

// Guest reports whether the order has no customer account.
func (in Input) Guest() bool { return in.CustomerID == "" }

// Result is returned to the caller after a successful commit.
type Result struct {
	OrderID          string        `json:"order_id"`
	OrderNumber      string        `json:"order_number"`
	Status           orders.Status `json:"status"`
	Subtotal         money.Amount  `json:"subtotal"`
	ShippingAmount   money.Amount  `json:"shipping_amount"`
	TotalAmount      money.Amount  `json:"total_amount"`
	Currency         string        `json:"currency"`
	PaymentMethod    string        `json:"payment_method"`
	PaymentReference string        `json:"payment_reference"`
	FreeShipping     bool          `json:"free_shipping"`
}

// Preview is the checkout totals screen: every line's status plus shipping.
type Preview struct {
	inventory.CartValidation
	Shipping       *shipping.Quote `json:"shipping,omitempty"`
	ShippingAmount money.Amount    `json:"shipping_amount"`
	FreeShipping   bool            `json:"free_shipping"`
	TotalAmount    money.Amount    `json:"total_amount"`
	Currency       string          `json:"currency"`
}
