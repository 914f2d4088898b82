package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/aws"
	"github.com/imrishuroy/heatshop-checkout/internal/checkout"
	"github.com/imrishuroy/heatshop-checkout/internal/config"
	"github.com/imrishuroy/heatshop-checkout/internal/idempotency"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/payment"
	"github.com/imrishuroy/heatshop-checkout/internal/rabbitmq"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
	"github.com/imrishuroy/heatshop-checkout/internal/shipping"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	clients, err := aws.NewClients(ctx)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	products := inventory.NewStore(clients.DynamoDB, cfg.Tables.Products)
	catalog := regions.NewCatalog(regions.NewStore(clients.DynamoDB, cfg.Tables.Regions), cfg.RegionCacheTTL)
	metrics := aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger)
	svc, err := checkout.NewService(checkout.Deps{
		Inventory: inventory.NewGate(products),
		Shipping:  shipping.NewResolver(catalog, cfg.Checkout.FallbackShippingCost, logger),
		Payments:  payment.NewGate(),
		Orders:    orders.NewStore(clients.DynamoDB, cfg.Tables.Orders, cfg.Tables.OrderItems, products),
		Metrics:   metrics,
		Logger:    logger,
		Currency:  cfg.Checkout.Currency,
	})
	if err != nil {
		logger.Fatal("failed to init checkout", zap.Error(err))
	}
	processor := NewProcessor(svc, idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.IdempotencyTTL), metrics, logger)

	if cfg.Events.Backend == config.EventsRabbitMQ {
		if err := consume(cfg, processor, logger); err != nil {
			logger.Fatal("consumer stopped", zap.Error(err))
		}
		return
	}

	// RUN_LOCAL feeds one message from LOCAL_SQS_BODY through the handler.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"type":"order.created","order_id":"local-order-1"}`
		}
		resp, err := processor.Handle(ctx, events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local handler failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(processor.Handle)
}

// consume runs a long-lived RabbitMQ consumer until SIGINT or SIGTERM.
func consume(cfg *config.Config, processor *Processor, logger *zap.Logger) error {
	conn, err := amqp.Dial(cfg.Events.RabbitMQURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(cfg.Events.RabbitMQQueue, true, false, false, false, nil); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, _ := os.Hostname()
	return rabbitmq.NewConsumer(ch, cfg.Events.RabbitMQQueue, "worker-"+host, processor.Process, logger).Run(ctx)
}
