package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one message body. A returned error nacks the delivery.
type Handler func(ctx context.Context, messageID string, body []byte) error

// ConsumeChannel is the subset of *amqp.Channel used by Consumer.
type ConsumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Consumer reads one message at a time with manual acknowledgements.
type Consumer struct {
	ch      ConsumeChannel
	queue   string
	tag     string
	handler Handler
	logger  *zap.Logger
}

// NewConsumer wraps a channel dedicated to consuming queue.
func NewConsumer(ch ConsumeChannel, queue, tag string, handler Handler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{ch: ch, queue: queue, tag: tag, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled or the broker closes the delivery
// stream. A failed message is requeued once, then dropped to the
// dead-letter exchange if the queue has one.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.ch.Close()

	if err := c.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	c.logger.Info("consumer started", zap.String("queue", c.queue), zap.String("tag", c.tag))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq: delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.String("message_id", d.MessageId), zap.String("type", d.Type))
	id := d.MessageId
	if id == "" {
		id = fmt.Sprintf("%s#%d", c.tag, d.DeliveryTag)
	}
	if err := c.handler(ctx, id, d.Body); err != nil {
		requeue := !d.Redelivered
		log.Error("message failed", zap.Bool("requeue", requeue), zap.Error(err))
		if nerr := d.Nack(false, requeue); nerr != nil {
			log.Warn("nack failed", zap.Error(nerr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", zap.Error(err))
	}
}
