// Package payment validates the requested payment method. Only cash on
// delivery is enabled; online networks are intentionally absent.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
)

// Method identifiers accepted on the wire.
const (
	MethodCashOnDelivery = "CASH_ON_DELIVERY"
	MethodCard           = "CARD"
	MethodEDahabia       = "EDAHABIA"
)

// StatusPendingCollection means the courier collects the amount on delivery.
const StatusPendingCollection = "PENDING_COLLECTION"

// Settlement is the outcome of a successful validation.
type Settlement struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Handler settles one payment method.
type Handler func(ctx context.Context, customerID string) (Settlement, error)

// Gate holds the allow-list of enabled methods.
type Gate struct {
	handlers map[string]Handler
	nowFunc  func() time.Time
}

// NewGate returns a Gate with cash on delivery enabled.
func NewGate() *Gate {
	g := &Gate{handlers: map[string]Handler{}, nowFunc: time.Now}
	g.handlers[MethodCashOnDelivery] = g.cashOnDelivery
	return g
}

// Validate checks method against the allow-list and settles it.
func (g *Gate) Validate(ctx context.Context, method, customerID string) (Settlement, error) {
	h, ok := g.handlers[method]
	if !ok {
		return Settlement{}, apperr.New(apperr.KindPaymentMethodDisabled, "payment method %q is not enabled", method)
	}
	return h(ctx, customerID)
}

func (g *Gate) cashOnDelivery(ctx context.Context, customerID string) (Settlement, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return Settlement{}, apperr.Infrastructure("generate payment reference", err)
	}
	return Settlement{
		Method:    MethodCashOnDelivery,
		Reference: fmt.Sprintf("COD-%d-%s", g.nowFunc().UnixMilli(), hex.EncodeToString(b[:])),
		Status:    StatusPendingCollection,
	}, nil
}
