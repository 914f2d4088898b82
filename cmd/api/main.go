package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/aws"
	"github.com/imrishuroy/heatshop-checkout/internal/cart"
	"github.com/imrishuroy/heatshop-checkout/internal/checkout"
	"github.com/imrishuroy/heatshop-checkout/internal/config"
	orderevents "github.com/imrishuroy/heatshop-checkout/internal/events"
	"github.com/imrishuroy/heatshop-checkout/internal/handlers"
	"github.com/imrishuroy/heatshop-checkout/internal/idempotency"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/payment"
	"github.com/imrishuroy/heatshop-checkout/internal/rabbitmq"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
	"github.com/imrishuroy/heatshop-checkout/internal/shipping"
	"github.com/imrishuroy/heatshop-checkout/internal/validation"
)

func setupRouter(logger *zap.Logger, cfg handlers.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger))
	handlers.Register(r, cfg)
	return r
}

// newPublisher picks the order event transport. The returned func releases it.
func newPublisher(cfg *config.Config, clients *aws.Clients, logger *zap.Logger) (orderevents.Publisher, func(), error) {
	switch cfg.Events.Backend {
	case config.EventsRabbitMQ:
		pool, err := rabbitmq.Dial(cfg.Events.RabbitMQURL, cfg.Events.RabbitMQQueue, cfg.Events.ChannelPoolSize, logger)
		if err != nil {
			return nil, nil, err
		}
		return rabbitmq.NewPublisher(pool, cfg.Events.RabbitMQQueue), pool.Close, nil
	case config.EventsSQS:
		if cfg.Events.QueueURL != "" {
			return aws.NewPublisher(clients.SQS, cfg.Events.QueueURL), func() {}, nil
		}
		logger.Warn("ORDERS_QUEUE_URL not set, order events are dropped")
	}
	return orderevents.Nop{}, func() {}, nil
}

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

	publisher, closePublisher, err := newPublisher(cfg, clients, logger)
	if err != nil {
		logger.Fatal("failed to init event publisher", zap.String("backend", cfg.Events.Backend), zap.Error(err))
	}
	defer closePublisher()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, guest carts will fail until it is", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancel()

	catalog := regions.NewCatalog(regions.NewStore(clients.DynamoDB, cfg.Tables.Regions), cfg.RegionCacheTTL)
	resolver := shipping.NewResolver(catalog, cfg.Checkout.FallbackShippingCost, logger)
	products := inventory.NewStore(clients.DynamoDB, cfg.Tables.Products)
	gate := inventory.NewGate(products)
	idem := idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.IdempotencyTTL)

	carts := cart.NewService(cart.Deps{
		Guests:          cart.NewGuestStore(rdb, cfg.Redis.KeyPrefix, cfg.Redis.GuestCartTTL),
		Customers:       cart.NewCustomerStore(clients.DynamoDB, cfg.Tables.Carts),
		Products:        gate,
		MaxLineQuantity: cfg.Checkout.MaxLineQuantity,
		Logger:          logger,
	})

	svc, err := checkout.NewService(checkout.Deps{
		Inventory:             gate,
		Shipping:              resolver,
		Payments:              payment.NewGate(),
		Orders:                orders.NewStore(clients.DynamoDB, cfg.Tables.Orders, cfg.Tables.OrderItems, products),
		Idempotency:           idem,
		Carts:                 carts,
		Events:                publisher,
		Metrics:               aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger),
		Logger:                logger,
		Currency:              cfg.Checkout.Currency,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
	})
	if err != nil {
		logger.Fatal("failed to init checkout", zap.Error(err))
	}

	r := setupRouter(logger, handlers.Config{
		Regions:        catalog,
		Shipping:       resolver,
		Carts:          carts,
		Checkout:       svc,
		Idempotency:    idem,
		Validator:      validation.New(),
		IdentityHeader: cfg.IdentityHeader,
		Logger:         logger,
	})

	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info("running local server", zap.String("addr", addr), zap.String("events", cfg.Events.Backend))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
