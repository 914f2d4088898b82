package orders

import (
	"time"

	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

// Status is an order lifecycle state.
type Status string

// Order statuses
const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Contact holds the buyer's contact details. Required for guest orders.
type Contact struct {
	Name  string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Email string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Phone string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
}

// Address is the delivery address; RegionCode is the wilaya code.
type Address struct {
	Street     string `dynamodbav:"street" json:"street"`
	City       string `dynamodbav:"city" json:"city"`
	RegionCode string `dynamodbav:"region_code" json:"region_code"`
	PostalCode string `dynamodbav:"postal_code,omitempty" json:"postal_code,omitempty"`
	Country    string `dynamodbav:"country" json:"country"`
}

// Order represents the item stored in the orders table. Items live in the
// order_items table and are attached on read.
type Order struct {
	OrderID          string        `dynamodbav:"order_id" json:"order_id"` // PK
	OrderNumber      string        `dynamodbav:"order_number" json:"order_number"`
	CustomerID       string        `dynamodbav:"customer_id,omitempty" json:"customer_id,omitempty"` // GSI customer_id-index
	Guest            bool          `dynamodbav:"guest" json:"guest"`
	Contact          Contact       `dynamodbav:"contact" json:"contact"`
	ShippingAddress  Address       `dynamodbav:"shipping_address" json:"shipping_address"`
	Subtotal         money.Amount  `dynamodbav:"subtotal" json:"subtotal"`
	ShippingAmount   money.Amount  `dynamodbav:"shipping_amount" json:"shipping_amount"`
	TotalAmount      money.Amount  `dynamodbav:"total_amount" json:"total_amount"`
	Currency         string        `dynamodbav:"currency" json:"currency"`
	Status           Status        `dynamodbav:"status" json:"status"`
	PaymentMethod    string        `dynamodbav:"payment_method" json:"payment_method"`
	PaymentReference string        `dynamodbav:"payment_reference,omitempty" json:"payment_reference,omitempty"`
	PaymentStatus    string        `dynamodbav:"payment_status,omitempty" json:"payment_status,omitempty"`
	FreeShipping     bool          `dynamodbav:"free_shipping" json:"free_shipping"`
	ShippingFallback bool          `dynamodbav:"shipping_fallback" json:"shipping_fallback"`
	DeclaredTotal    *money.Amount `dynamodbav:"declared_total,omitempty" json:"declared_total,omitempty"`
	IdempotencyKey   string        `dynamodbav:"idempotency_key,omitempty" json:"-"`
	CreatedAt        time.Time     `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `dynamodbav:"updated_at" json:"updated_at"`
	CancelledAt      *time.Time    `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CancelReason     string        `dynamodbav:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	Items            []OrderItem   `dynamodbav:"-" json:"items,omitempty"`
}

// OrderItem snapshots the price paid so later price changes never rewrite
// history.
type OrderItem struct {
	OrderID    string       `dynamodbav:"order_id" json:"-"` // PK
	Line       int          `dynamodbav:"line" json:"line"`  // SK
	ProductID  string       `dynamodbav:"product_id" json:"product_id"`
	Name       string       `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Quantity   int          `dynamodbav:"quantity" json:"quantity"`
	UnitPrice  money.Amount `dynamodbav:"unit_price" json:"unit_price"`
	TotalPrice money.Amount `dynamodbav:"total_price" json:"total_price"`
}
