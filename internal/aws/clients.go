package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Clients holds the service clients the checkout binaries share.
type Clients struct {
	// DynamoDB backs regions, products, customer carts, orders and
	// idempotency records.
	DynamoDB DynamoDBAPI
	// SQS carries order events when EVENTS_BACKEND=sqs.
	SQS SQSAPI
	// CloudWatch receives checkout and worker counters.
	CloudWatch CloudWatchAPI
	// Region the clients were configured for.
	Region string
}

// NewClients loads the shared config and builds every client from it. extra
// options are applied after the region and endpoint defaults. When
// DYNAMODB_ENDPOINT_OVERRIDE is set only DynamoDB is pointed at it, which
// suits DynamoDB Local next to a real queue.
func NewClients(ctx context.Context, extra ...func(*config.LoadOptions) error) (*Clients, error) {
	cfg, err := LoadAWSConfig(ctx, extra...)
	if err != nil {
		return nil, err
	}

	var dynamoOpts []func(*dynamodb.Options)
	if endpoint := os.Getenv("DYNAMODB_ENDPOINT_OVERRIDE"); endpoint != "" {
		dynamoOpts = append(dynamoOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = &endpoint
		})
	}

	return &Clients{
		DynamoDB:   dynamodb.NewFromConfig(cfg, dynamoOpts...),
		SQS:        sqs.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
		Region:     cfg.Region,
	}, nil
}
