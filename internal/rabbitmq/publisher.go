package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/imrishuroy/heatshop-checkout/internal/events"
)

const publishTimeout = 5 * time.Second

// Publisher sends order events to a durable queue through the default exchange.
type Publisher struct {
	pool      *ChannelPool
	queueName string
	newID     func() string
}

// NewPublisher binds a pool to a queue.
func NewPublisher(pool *ChannelPool, queueName string) *Publisher {
	return &Publisher{pool: pool, queueName: queueName, newID: uuid.NewString}
}

// Publish sends ev as a persistent JSON message. The message id lets the
// worker drop redeliveries.
func (p *Publisher) Publish(ctx context.Context, ev events.OrderEvent) error {
	body, err := events.Encode(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ch, err := p.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("get channel from pool: %w", err)
	}
	defer p.pool.Put(ch)

	headers := amqp.Table{}
	for k, v := range events.Attributes(ev) {
		headers[k] = v
	}
	msg := amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     p.newID(),
		CorrelationId: ev.CorrelationID,
		Type:          ev.Type,
		Timestamp:     ev.OccurredAt,
		Headers:       headers,
		Body:          body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}
