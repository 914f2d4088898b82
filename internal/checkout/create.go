package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/cart"
	"github.com/imrishuroy/heatshop-checkout/internal/events"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
	"github.com/imrishuroy/heatshop-checkout/internal/validation"
)

// CreateOrder runs the checkout pipeline in order: validate, check stock per
// line (first failure wins), price from live data, resolve shipping, check
// payment, commit. Nothing is persisted unless every step passes.
func (s *Service) CreateOrder(ctx context.Context, in Input) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "checkout.CreateOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("order.guest", in.Guest()),
		attribute.Int("order.lines", len(in.Items)),
	)
	log := logging.FromContext(ctx, s.logger).With(
		zap.String("customer_id", in.CustomerID),
		zap.Bool("guest", in.Guest()),
	)
	defer func() {
		if err == nil {
			return
		}
		kind := apperr.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		s.metrics.Count(ctx, MetricOrdersRejected, 1, map[string]string{"Reason": string(kind)})
		if kind == apperr.KindInfrastructure {
			log.Error("order creation failed", zap.Error(err))
		} else {
			log.Info("order rejected", zap.String("reason", string(kind)), zap.Error(err))
		}
	}()

	lines, err := s.validate(in)
	if err != nil {
		return Result{}, err
	}

	orderItems := make([]orders.OrderItem, 0, len(lines))
	subtotal := money.Zero
	for _, l := range lines {
		av, err := s.inventory.CheckAvailability(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return Result{}, err
		}
		if !av.Available {
			return Result{}, apperr.InsufficientStock(l.ProductID, l.Quantity, av.CurrentStock)
		}
		lineTotal := av.Product.Price.Times(l.Quantity)
		subtotal = subtotal.Plus(lineTotal)
		orderItems = append(orderItems, orders.OrderItem{
			ProductID:  l.ProductID,
			Name:       av.Product.Name,
			Quantity:   l.Quantity,
			UnitPrice:  av.Product.Price,
			TotalPrice: lineTotal,
		})
	}

	quote := s.shipping.Resolve(ctx, in.Address.RegionCode)
	shippingAmount, free := s.shippingAmount(subtotal, quote.Cost)
	total := money.Sum(subtotal, shippingAmount)

	if in.DeclaredTotal != nil && !in.DeclaredTotal.Eq(total) {
		drift := in.DeclaredTotal.Minus(total)
		log.Warn("declared total differs from computed total",
			zap.String("declared", in.DeclaredTotal.String()),
			zap.String("computed", total.String()))
		f, _ := drift.Abs().Float64()
		s.metrics.Value(ctx, MetricOrderTotalDrift, f, nil)
	}

	settlement, err := s.payments.Validate(ctx, in.PaymentMethod, in.CustomerID)
	if err != nil {
		return Result{}, err
	}

	now := s.now().UTC()
	order := orders.Order{
		OrderID:          s.newID(),
		OrderNumber:      orders.NewOrderNumber(in.Guest()),
		CustomerID:       in.CustomerID,
		Guest:            in.Guest(),
		Contact:          in.Contact,
		ShippingAddress:  in.Address,
		Subtotal:         subtotal,
		ShippingAmount:   shippingAmount,
		TotalAmount:      total,
		Currency:         s.currency,
		Status:           orders.StatusPending,
		PaymentMethod:    settlement.Method,
		PaymentReference: settlement.Reference,
		PaymentStatus:    settlement.Status,
		FreeShipping:     free,
		ShippingFallback: quote.Fallback,
		DeclaredTotal:    in.DeclaredTotal,
		IdempotencyKey:   in.IdempotencyKey,
		CreatedAt:        now,
		UpdatedAt:        now,
		Items:            orderItems,
	}

	var guard *types.TransactWriteItem
	if in.IdempotencyKey != "" && s.idempotency != nil {
		op, err := s.idempotency.PutOp(in.IdempotencyKey, order.OrderID)
		if err != nil {
			return Result{}, apperr.Infrastructure("build idempotency record", err)
		}
		guard = &op
	}

	if err := s.orders.Place(ctx, order, guard); err != nil {
		return Result{}, placeError(err)
	}
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	s.afterPlace(ctx, log, in, order)

	return Result{
		OrderID:          order.OrderID,
		OrderNumber:      order.OrderNumber,
		Status:           order.Status,
		Subtotal:         subtotal,
		ShippingAmount:   shippingAmount,
		TotalAmount:      total,
		Currency:         order.Currency,
		PaymentMethod:    settlement.Method,
		PaymentReference: settlement.Reference,
		FreeShipping:     free,
	}, nil
}

// afterPlace runs the post-commit side effects. The order already stands, so
// failures here are logged and never returned.
func (s *Service) afterPlace(ctx context.Context, log *zap.Logger, in Input, order orders.Order) {
	log = log.With(zap.String("order_id", order.OrderID), zap.String("order_number", order.OrderNumber))

	if s.carts != nil {
		var owner cart.Owner
		switch {
		case !in.Guest():
			owner = cart.Customer(in.CustomerID)
		case in.GuestSession != "":
			owner = cart.Guest(in.GuestSession)
		}
		if owner.ID != "" {
			if err := s.carts.Clear(ctx, owner); err != nil {
				log.Warn("clear cart after order failed", zap.Error(err))
			}
		}
	}

	ev := events.OrderEvent{
		Type:           events.TypeOrderCreated,
		OrderID:        order.OrderID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		Status:         string(order.Status),
		TotalAmount:    order.TotalAmount.String(),
		Currency:       order.Currency,
		IdempotencyKey: in.IdempotencyKey,
		CorrelationID:  in.CorrelationID,
		OccurredAt:     order.CreatedAt,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Warn("publish order event failed", zap.String("event", ev.Type), zap.Error(err))
	}

	guest := "false"
	if order.Guest {
		guest = "true"
	}
	s.metrics.Count(ctx, MetricOrdersPlaced, 1, map[string]string{"Guest": guest})
	log.Info("order placed", zap.String("total", order.TotalAmount.String()), zap.Int("lines", len(order.Items)))
}

func (s *Service) shippingAmount(subtotal, cost money.Amount) (money.Amount, bool) {
	if s.freeThreshold.IsPositive() && subtotal.Gte(s.freeThreshold) {
		return money.Zero, true
	}
	return cost, false
}

// placeError maps a failed commit to a client-facing error.
func placeError(err error) error {
	var stock *orders.StockConflictError
	switch {
	case errors.As(err, &stock):
		return &apperr.Error{
			Kind:      apperr.KindInsufficientStock,
			Message:   fmt.Sprintf("stock changed while placing the order, %d no longer available", stock.Quantity),
			ProductID: stock.ProductID,
			Err:       err,
		}
	case errors.Is(err, orders.ErrDuplicateRequest):
		return &apperr.Error{Kind: apperr.KindDuplicateRequest, Message: "idempotency key already used", Err: err}
	case errors.Is(err, orders.ErrTooManyLines):
		return apperr.InvalidField("items", err.Error())
	}
	return apperr.Infrastructure("place order", err)
}

// validate checks the submission and folds duplicate products into one line,
// keeping the first occurrence's position.
func (s *Service) validate(in Input) ([]Line, error) {
	fields := map[string]string{}

	if len(in.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	var folded []Line
	index := map[string]int{}
	for i, it := range in.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		if _, err := uuid.Parse(it.ProductID); err != nil {
			fields[prefix+"product_id"] = "must be a UUID"
		}
		if it.Quantity < 1 {
			fields[prefix+"quantity"] = "must be at least 1"
		}
		if it.DeclaredPrice.IsNegative() {
			fields[prefix+"unit_price"] = "must not be negative"
		}
		if j, ok := index[it.ProductID]; ok {
			folded[j].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(folded)
		folded = append(folded, it)
	}
	if len(folded) > orders.MaxLines {
		fields["items"] = fmt.Sprintf("at most %d distinct products per order", orders.MaxLines)
	}

	a := in.Address
	if strings.TrimSpace(a.Street) == "" {
		fields["shipping_address.street"] = "is required"
	}
	if strings.TrimSpace(a.City) == "" {
		fields["shipping_address.city"] = "is required"
	}
	if !regions.ValidCode(a.RegionCode) {
		fields["shipping_address.region_code"] = "must be a two-digit wilaya code"
	}
	if strings.TrimSpace(a.Country) == "" {
		fields["shipping_address.country"] = "is required"
	}

	c := in.Contact
	if in.Guest() {
		if strings.TrimSpace(c.Name) == "" {
			fields["contact.name"] = "is required"
		}
		if strings.TrimSpace(c.Email) == "" {
			fields["contact.email"] = "is required"
		}
		if strings.TrimSpace(c.Phone) == "" {
			fields["contact.phone"] = "is required"
		}
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			fields["contact.email"] = "must be a valid email address"
		}
	}
	if c.Phone != "" && !validation.ValidPhone(c.Phone) {
		fields["contact.phone"] = "must be an Algerian phone number"
	}

	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}
	return folded, nil
}
