package checkout

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/events"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
)

// CancelledByBackOffice is the reason recorded when the worker cancels.
const CancelledByBackOffice = "cancelled by back office"

// GetOrder returns an order owned by customerID.
func (s *Service) GetOrder(ctx context.Context, customerID, orderID string) (*orders.Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID == "" || o.CustomerID != customerID {
		return nil, apperr.New(apperr.KindForbidden, "order %s belongs to another customer", orderID)
	}
	return o, nil
}

// ListOrders returns the customer's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, customerID string) ([]orders.Order, error) {
	if customerID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	list, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperr.Infrastructure("list orders", err)
	}
	if list == nil {
		list = []orders.Order{}
	}
	return list, nil
}

// CancelOrder lets a customer cancel their own non-terminal order. Stock for
// every line is returned in the same transaction as the status change.
func (s *Service) CancelOrder(ctx context.Context, customerID, orderID, reason string) (*orders.Order, error) {
	o, err := s.GetOrder(ctx, customerID, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(ctx, o, reason); err != nil {
		return nil, err
	}
	return o, nil
}

// Transition applies a back-office status change. Re-applying the current
// status is a no-op so redelivered commands are harmless.
func (s *Service) Transition(ctx context.Context, orderID string, to orders.Status) error {
	if !to.Valid() {
		return apperr.InvalidField("to", "unknown order status")
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == to {
		return nil
	}
	if !orders.CanTransition(o.Status, to) {
		return apperr.New(apperr.KindInvalidTransition, "cannot move order from %s to %s", o.Status, to)
	}
	if to == orders.StatusCancelled {
		return s.cancel(ctx, o, CancelledByBackOffice)
	}
	if err := s.orders.UpdateStatus(ctx, orderID, o.Status, to); err != nil {
		return statusError(err)
	}
	logging.FromContext(ctx, s.logger).Info("order status changed",
		zap.String("order_id", orderID), zap.String("from", string(o.Status)), zap.String("to", string(to)))
	o.Status = to
	return nil
}

func (s *Service) cancel(ctx context.Context, o *orders.Order, reason string) error {
	if o.Status.Terminal() {
		return apperr.New(apperr.KindInvalidTransition, "order is already %s", o.Status)
	}
	from := o.Status
	if err := s.orders.Cancel(ctx, *o, from, reason); err != nil {
		return statusError(err)
	}
	now := s.now().UTC()
	o.Status = orders.StatusCancelled
	o.CancelReason = reason
	o.CancelledAt = &now
	o.UpdatedAt = now

	log := logging.FromContext(ctx, s.logger).With(zap.String("order_id", o.OrderID))
	log.Info("order cancelled", zap.String("from", string(from)))
	s.metrics.Count(ctx, MetricOrdersCancelled, 1, nil)

	ev := events.OrderEvent{
		Type:        events.TypeOrderCancelled,
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.String(),
		Currency:    o.Currency,
		Reason:      reason,
		OccurredAt:  now,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Warn("publish order event failed", zap.String("event", ev.Type), zap.Error(err))
	}
	return nil
}

func (s *Service) load(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Infrastructure("get order", err)
	}
	if o == nil {
		return nil, apperr.NotFound("order", orderID)
	}
	return o, nil
}

func statusError(err error) error {
	if errors.Is(err, orders.ErrStatusMismatch) {
		return &apperr.Error{Kind: apperr.KindConflict, Message: "order status changed concurrently, retry", Err: err}
	}
	return apperr.Infrastructure("update order status", err)
}

// ValidateCart previews checkout totals: every line is reported, shipping is
// resolved when a region is given, and the free-shipping rule is applied.
func (s *Service) ValidateCart(ctx context.Context, lines []Line, regionCode string) (Preview, error) {
	if len(lines) == 0 {
		return Preview{}, apperr.InvalidField("items", "at least one item is required")
	}
	invLines := make([]inventory.Line, 0, len(lines))
	for _, l := range lines {
		invLines = append(invLines, inventory.Line{ProductID: l.ProductID, Quantity: l.Quantity, DeclaredPrice: l.DeclaredPrice})
	}
	cv, err := s.inventory.ValidateCart(ctx, invLines)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{CartValidation: cv, ShippingAmount: money.Zero, Currency: s.currency}
	if regionCode != "" {
		quote := s.shipping.Resolve(ctx, regionCode)
		p.Shipping = &quote
		p.ShippingAmount, p.FreeShipping = s.shippingAmount(cv.Subtotal, quote.Cost)
	}
	p.TotalAmount = money.Sum(cv.Subtotal, p.ShippingAmount)
	return p, nil
}
