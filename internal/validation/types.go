package validation

import "github.com/imrishuroy/heatshop-checkout/internal/money"

// CartItemRequest is one line sent by the client. UnitPrice is informational:
// prices are always re-read from the product table.
type CartItemRequest struct {
	ProductID string       `json:"product_id" validate:"required,uuid"`
	Quantity  int          `json:"quantity" validate:"required,min=1"`
	UnitPrice money.Amount `json:"unit_price" validate:"gte=0"`
	Name      string       `json:"name,omitempty" validate:"max=200"`
	ImageRef  string       `json:"image_ref,omitempty" validate:"max=500"`
}

// ReplaceCartRequest is the payload for PUT /cart. An empty list clears the cart.
type ReplaceCartRequest struct {
	Items []CartItemRequest `json:"items" validate:"max=40,dive"`
}

// UpdateQuantityRequest is the payload for PATCH /cart/items/:productId.
// Zero or negative removes the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// MergeCartRequest is the payload for POST /cart/merge: either a server-side
// guest session or the items the client kept locally.
type MergeCartRequest struct {
	GuestSession string            `json:"guest_session,omitempty" validate:"max=128"`
	SnapshotID   string            `json:"snapshot_id,omitempty" validate:"max=128"`
	Items        []CartItemRequest `json:"items,omitempty" validate:"max=40,dive"`
}

// AddressRequest is a delivery address inside Algeria.
type AddressRequest struct {
	Street     string `json:"street" validate:"required,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	RegionCode string `json:"region_code" validate:"required,len=2,numeric"`
	PostalCode string `json:"postal_code,omitempty" validate:"omitempty,len=5,numeric"`
	Country    string `json:"country" validate:"required,max=60"`
}

// ContactRequest holds buyer contact details. Guest orders require all three.
type ContactRequest struct {
	Name  string `json:"name,omitempty" validate:"omitempty,max=120"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,dzphone"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	Items           []CartItemRequest `json:"items" validate:"required,min=1,max=40,dive"`
	ShippingAddress AddressRequest    `json:"shipping_address"`
	Contact         ContactRequest    `json:"contact"`
	PaymentMethod   string            `json:"payment_method" validate:"required"`
	DeclaredTotal   *money.Amount     `json:"total_amount,omitempty"`
}

// GuestOrderRequest is the payload for POST /guest/orders.
type GuestOrderRequest struct {
	CreateOrderRequest
}

// ValidateCartRequest is the payload for POST /checkout/validate.
type ValidateCartRequest struct {
	Items      []CartItemRequest `json:"items" validate:"required,min=1,max=40,dive"`
	RegionCode string            `json:"region_code,omitempty" validate:"omitempty,len=2,numeric"`
}

// CancelOrderRequest is the optional payload for POST /orders/:id/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}
