package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/checkout"
	"github.com/imrishuroy/heatshop-checkout/internal/idempotency"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/validation"
)

func (a *api) createOrder(c *gin.Context) {
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
		return
	}
	in := orderInput(req)
	in.CustomerID = customerID(c)
	a.placeOrder(c, in, "customer#"+in.CustomerID)
}

func (a *api) createGuestOrder(c *gin.Context) {
	var req validation.GuestOrderRequest
	if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
		return
	}
	in := orderInput(req.CreateOrderRequest)
	in.GuestSession = strings.TrimSpace(c.GetHeader(GuestSessionHeader))
	if in.GuestSession == "" && strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)) != "" {
		a.fail(c, apperr.InvalidField(GuestSessionHeader, "is required with "+IdempotencyKeyHeader))
		return
	}
	a.placeOrder(c, in, "guest#"+in.GuestSession)
}

func orderInput(req validation.CreateOrderRequest) checkout.Input {
	return checkout.Input{
		Contact: orders.Contact{
			Name:  strings.TrimSpace(req.Contact.Name),
			Email: strings.TrimSpace(req.Contact.Email),
			Phone: validation.NormalizePhone(req.Contact.Phone),
		},
		Address: orders.Address{
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			RegionCode: req.ShippingAddress.RegionCode,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		Items:         toLines(req.Items),
		PaymentMethod: req.PaymentMethod,
		DeclaredTotal: req.DeclaredTotal,
	}
}

// placeOrder runs checkout behind the optional Idempotency-Key. Keys are
// scoped to the caller so one buyer can never replay another's response.
// A finished key replays the stored response; a key whose order is
// committed but not yet recorded as done answers 202.
func (a *api) placeOrder(c *gin.Context, in checkout.Input, scope string) {
	ctx := c.Request.Context()
	in.CorrelationID = logging.RequestID(c)

	rawKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if rawKey != "" && a.idempotency != nil {
		in.IdempotencyKey = scope + ":" + rawKey
		if a.replay(c, in.IdempotencyKey) {
			return
		}
	}

	res, err := a.checkout.CreateOrder(ctx, in)
	if err != nil {
		if apperr.Is(err, apperr.KindDuplicateRequest) && in.IdempotencyKey != "" && a.replay(c, in.IdempotencyKey) {
			return
		}
		a.fail(c, err)
		return
	}

	body, err := json.Marshal(res)
	if err != nil {
		a.fail(c, apperr.Infrastructure("encode order response", err))
		return
	}
	if in.IdempotencyKey != "" {
		a.markDone(ctx, in.IdempotencyKey, string(body))
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

// replay answers from a stored idempotency record. It reports false when the
// request should run.
func (a *api) replay(c *gin.Context, key string) bool {
	rec, err := a.idempotency.Get(c.Request.Context(), key)
	if err != nil {
		a.fail(c, apperr.Infrastructure("read idempotency key", err))
		return true
	}
	if rec == nil {
		return false
	}
	switch rec.Status {
	case idempotency.StatusDone:
		status := rec.ResponseStatus
		if status == 0 {
			status = http.StatusCreated
		}
		c.Data(status, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return true
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"status": "in_progress", "order_id": rec.OrderID})
		return true
	}
	return false
}

func (a *api) markDone(ctx context.Context, key, body string) {
	if err := a.idempotency.MarkDone(ctx, key, body, http.StatusCreated); err != nil {
		logging.FromContext(ctx, a.logger).Warn("mark idempotency key done failed",
			zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (a *api) listOrders(c *gin.Context) {
	list, err := a.checkout.ListOrders(c.Request.Context(), customerID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (a *api) getOrder(c *gin.Context) {
	o, err := a.checkout.GetOrder(c.Request.Context(), customerID(c), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *api) cancelOrder(c *gin.Context) {
	var req validation.CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
	}
	o, err := a.checkout.CancelOrder(c.Request.Context(), customerID(c), c.Param("id"), req.Reason)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
