// Package checkout assembles orders: it re-validates the cart against live
// stock and prices, resolves shipping, checks the payment method and commits
// the order, its lines and the stock decrements in one transaction.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/cart"
	"github.com/imrishuroy/heatshop-checkout/internal/events"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/payment"
	"github.com/imrishuroy/heatshop-checkout/internal/shipping"
)

var tracer = otel.Tracer("github.com/imrishuroy/heatshop-checkout/internal/checkout")

// Metric names published by the service.
const (
	MetricOrdersPlaced    = "OrdersPlaced"
	MetricOrdersRejected  = "OrdersRejected"
	MetricOrderTotalDrift = "OrderTotalDrift"
	MetricOrdersCancelled = "OrdersCancelled"
)

// Inventory is the stock and price source.
type Inventory interface {
	CheckAvailability(ctx context.Context, productID string, qty int) (inventory.Availability, error)
	ValidateCart(ctx context.Context, lines []inventory.Line) (inventory.CartValidation, error)
}

// Shipping prices a wilaya code.
type Shipping interface {
	Resolve(ctx context.Context, regionCode string) shipping.Quote
}

// Payments validates the payment method.
type Payments interface {
	Validate(ctx context.Context, method, customerID string) (payment.Settlement, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Place(ctx context.Context, order orders.Order, guard *types.TransactWriteItem) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, expected, next orders.Status) error
	Cancel(ctx context.Context, order orders.Order, expected orders.Status, reason string) error
}

// Idempotency supplies the guard record written with the order.
type Idempotency interface {
	PutOp(key, orderID string) (types.TransactWriteItem, error)
}

// Carts clears the cart an order was placed from.
type Carts interface {
	Clear(ctx context.Context, owner cart.Owner) error
}

// Metrics records counters and values; *aws.Metrics satisfies it.
type Metrics interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string)
	Value(ctx context.Context, name string, value float64, dims map[string]string)
}

// Deps wires a Service. Inventory, Shipping, Payments and Orders are required.
type Deps struct {
	Inventory             Inventory
	Shipping              Shipping
	Payments              Payments
	Orders                OrderStore
	Idempotency           Idempotency
	Carts                 Carts
	Events                events.Publisher
	Metrics               Metrics
	Logger                *zap.Logger
	Currency              string
	FreeShippingThreshold money.Amount
	Clock                 func() time.Time
	IDGenerator           func() string
}

// Service is the order assembler.
type Service struct {
	inventory     Inventory
	shipping      Shipping
	payments      Payments
	orders        OrderStore
	idempotency   Idempotency
	carts         Carts
	events        events.Publisher
	metrics       Metrics
	logger        *zap.Logger
	currency      string
	freeThreshold money.Amount
	now           func() time.Time
	newID         func() string
}

// NewService validates deps and applies defaults.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Inventory == nil:
		return nil, errors.New("checkout: inventory is required")
	case deps.Shipping == nil:
		return nil, errors.New("checkout: shipping resolver is required")
	case deps.Payments == nil:
		return nil, errors.New("checkout: payment gate is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout: order store is required")
	}

	s := &Service{
		inventory:     deps.Inventory,
		shipping:      deps.Shipping,
		payments:      deps.Payments,
		orders:        deps.Orders,
		idempotency:   deps.Idempotency,
		carts:         deps.Carts,
		events:        deps.Events,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		currency:      deps.Currency,
		freeThreshold: deps.FreeShippingThreshold,
		now:           deps.Clock,
		newID:         deps.IDGenerator,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.currency == "" {
		s.currency = "DZD"
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

type nopMetrics struct{}

func (nopMetrics) Count(context.Context, string, float64, map[string]string) {}
func (nopMetrics) Value(context.Context, string, float64, map[string]string) {}
