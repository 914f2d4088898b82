package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	orderevents "github.com/imrishuroy/heatshop-checkout/internal/events"
	"github.com/imrishuroy/heatshop-checkout/internal/idempotency"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
)

// MetricWorkerTransitions counts applied back-office status changes.
const MetricWorkerTransitions = "WorkerTransitions"

// Transitioner applies back-office status changes.
type Transitioner interface {
	Transition(ctx context.Context, orderID string, to orders.Status) error
}

// Claims dedupes redelivered messages by message id.
type Claims interface {
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Metrics records worker counters.
type Metrics interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string)
}

// Processor handles order events and back-office commands from the queue.
type Processor struct {
	orders  Transitioner
	claims  Claims
	metrics Metrics
	logger  *zap.Logger
}

// NewProcessor wires a Processor. metrics may be nil.
func NewProcessor(transitions Transitioner, claims Claims, metrics Metrics, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{orders: transitions, claims: claims, metrics: metrics, logger: logger}
}

// Handle processes an SQS batch and reports only the failed messages, so
// one bad record does not redeliver the whole batch.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.Process(ctx, rec.MessageId, []byte(rec.Body)); err != nil {
			p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

// Process handles one message. A returned error means the message should be
// redelivered.
func (p *Processor) Process(ctx context.Context, messageID string, body []byte) error {
	msg, err := orderevents.Decode(body)
	if err != nil {
		return err
	}
	log := p.logger.With(
		zap.String("message_id", messageID),
		zap.String("type", msg.Type),
		zap.String("order_id", msg.OrderID),
		zap.String("correlation_id", msg.CorrelationID),
	)

	switch msg.Type {
	case orderevents.TypeOrderCreated:
		log.Info("order created", zap.String("order_number", msg.OrderNumber), zap.String("total", msg.TotalAmount))
		return nil
	case orderevents.TypeOrderCancelled:
		log.Info("order cancelled", zap.String("reason", msg.Reason))
		return nil
	}
	return p.transition(ctx, log, messageID, msg)
}

func (p *Processor) transition(ctx context.Context, log *zap.Logger, messageID string, msg orderevents.OrderEvent) error {
	key := "worker:" + messageID
	claimed, err := p.claims.CreateIfNotExists(ctx, key, msg.OrderID)
	if err != nil {
		return fmt.Errorf("claim message: %w", err)
	}
	if !claimed {
		rec, err := p.claims.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read message claim: %w", err)
		}
		if rec != nil && rec.Status == idempotency.StatusInProgress {
			return fmt.Errorf("message %s is being processed by another worker", messageID)
		}
		log.Info("duplicate message skipped")
		return nil
	}

	to := orders.Status(msg.To)
	err = p.orders.Transition(ctx, msg.OrderID, to)
	switch apperr.KindOf(err) {
	case "":
	case apperr.KindInfrastructure, apperr.KindConflict:
		if mErr := p.claims.MarkFailed(ctx, key, err.Error()); mErr != nil {
			log.Warn("mark message failed", zap.Error(mErr))
		}
		return fmt.Errorf("transition to %s: %w", to, err)
	default:
		// Permanent: retrying cannot make the command valid.
		log.Warn("transition rejected", zap.String("to", msg.To), zap.Error(err))
		p.done(ctx, log, key, msg, "rejected")
		return nil
	}

	log.Info("order transitioned", zap.String("to", msg.To))
	if p.metrics != nil {
		p.metrics.Count(ctx, MetricWorkerTransitions, 1, map[string]string{"To": msg.To})
	}
	p.done(ctx, log, key, msg, "applied")
	return nil
}

func (p *Processor) done(ctx context.Context, log *zap.Logger, key string, msg orderevents.OrderEvent, outcome string) {
	body := fmt.Sprintf(`{"order_id":%q,"to":%q,"outcome":%q}`, msg.OrderID, msg.To, outcome)
	if err := p.claims.MarkDone(ctx, key, body, 200); err != nil {
		log.Warn("mark message done failed", zap.Error(err))
	}
}
