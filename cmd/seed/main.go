// Command seed writes the wilaya catalog and, optionally, a products file
// into DynamoDB.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/aws"
	"github.com/imrishuroy/heatshop-checkout/internal/config"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
)

func main() {
	productsFile := flag.String("products", "", "YAML file of products to upsert")
	skipRegions := flag.Bool("skip-regions", false, "do not write the wilaya catalog")
	flag.Parse()

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

	if !*skipRegions {
		seed, err := regions.LoadSeed()
		if err != nil {
			logger.Fatal("invalid regions seed", zap.Error(err))
		}
		if err := regions.NewStore(clients.DynamoDB, cfg.Tables.Regions).Seed(ctx, seed); err != nil {
			logger.Fatal("seed regions failed", zap.Error(err))
		}
		logger.Info("regions seeded", zap.String("table", cfg.Tables.Regions), zap.Int("count", len(seed)))
	}

	if *productsFile == "" {
		return
	}
	data, err := os.ReadFile(*productsFile)
	if err != nil {
		logger.Fatal("read products file", zap.String("path", *productsFile), zap.Error(err))
	}
	products, err := inventory.ParseSeed(data)
	if err != nil {
		logger.Fatal("invalid products file", zap.Error(err))
	}
	store := inventory.NewStore(clients.DynamoDB, cfg.Tables.Products)
	for _, p := range products {
		if err := store.PutProduct(ctx, p); err != nil {
			logger.Fatal("seed product failed", zap.String("product_id", p.ProductID), zap.Error(err))
		}
	}
	logger.Info("products seeded", zap.String("table", cfg.Tables.Products), zap.Int("count", len(products)))
}
