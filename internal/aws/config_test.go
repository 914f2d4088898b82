package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "")
	t.Setenv("AWS_REGION", "")

	cfg, err := LoadAWSConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Region != "us-east-1" {
		t.Fatalf("expected default region 'us-east-1', got %s", cfg.Region)
	}
}

func TestLoadAWSConfig_WithEndpointOverride(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-3")
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "http://localhost:4566")

	cfg, err := LoadAWSConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Region != "eu-west-3" {
		t.Fatalf("region mismatch, got %s", cfg.Region)
	}
	if cfg.BaseEndpoint == nil || *cfg.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("expected base endpoint override, got %v", cfg.BaseEndpoint)
	}
}

func TestNewClients_ExtraOptionsWin(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-3")
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "")
	t.Setenv("DYNAMODB_ENDPOINT_OVERRIDE", "")

	clients, err := NewClients(context.Background(), config.WithRegion("eu-south-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clients.Region != "eu-south-1" {
		t.Fatalf("expected extra region option to apply, got %s", clients.Region)
	}
	if clients.DynamoDB == nil || clients.SQS == nil || clients.CloudWatch == nil {
		t.Fatalf("expected every client to be built, got %+v", clients)
	}
}

func TestNewClients_DynamoEndpointOverride(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "")
	t.Setenv("DYNAMODB_ENDPOINT_OVERRIDE", "http://localhost:8000")

	clients, err := NewClients(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ddb, ok := clients.DynamoDB.(*dynamodb.Client)
	if !ok {
		t.Fatalf("expected *dynamodb.Client, got %T", clients.DynamoDB)
	}
	endpoint := ddb.Options().BaseEndpoint
	if endpoint == nil || *endpoint != "http://localhost:8000" {
		t.Fatalf("expected dynamodb endpoint override, got %v", endpoint)
	}
}
