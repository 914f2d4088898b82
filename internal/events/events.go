package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried on the orders queue.
const (
	TypeOrderCreated    = "order.created"
	TypeOrderCancelled  = "order.cancelled"
	TypeOrderTransition = "order.transition"
)

// OrderEvent is the payload sent from API -> queue -> worker. Back-office
// status commands reuse the same envelope with Type=order.transition and To set.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number,omitempty"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	To             string    `json:"to,omitempty"`
	TotalAmount    string    `json:"total_amount,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher delivers order events to a transport.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

// Nop discards events. Used when EVENTS_BACKEND=none.
type Nop struct{}

func (Nop) Publish(context.Context, OrderEvent) error { return nil }

// Encode serialises the event for a message body.
func Encode(ev OrderEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}
	return body, nil
}

// Decode parses a message body and checks the envelope.
func Decode(body []byte) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid message body: %w", err)
	}
	if ev.OrderID == "" {
		return OrderEvent{}, fmt.Errorf("invalid message body: missing order_id")
	}
	switch ev.Type {
	case TypeOrderCreated, TypeOrderCancelled:
	case TypeOrderTransition:
		if ev.To == "" {
			return OrderEvent{}, fmt.Errorf("invalid message body: transition without target status")
		}
	default:
		return OrderEvent{}, fmt.Errorf("invalid message body: unknown type %q", ev.Type)
	}
	return ev, nil
}

// Attributes returns the routing attributes attached to a published message.
func Attributes(ev OrderEvent) map[string]string {
	attrs := map[string]string{
		"type":     ev.Type,
		"order_id": ev.OrderID,
	}
	if ev.IdempotencyKey != "" {
		attrs["idempotency_key"] = ev.IdempotencyKey
	}
	if ev.CorrelationID != "" {
		attrs["correlation_id"] = ev.CorrelationID
	}
	return attrs
}
