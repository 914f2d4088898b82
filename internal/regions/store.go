package regions

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/heatshop-checkout/internal/aws"
)

// Store reads and seeds the regions table (PK code).
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a regions Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// All scans the whole table. The table holds one row per wilaya so a scan is cheap.
func (s *Store) All(ctx context.Context) ([]Region, error) {
	var (
		out   []Region
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan regions: %w", err)
		}
		var regions []Region
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &regions); err != nil {
			return nil, fmt.Errorf("unmarshal regions: %w", err)
		}
		out = append(out, regions...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

// Put writes one region, replacing any previous row for the code.
func (s *Store) Put(ctx context.Context, r Region) error {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshal region: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put region %s: %w", r.Code, err)
	}
	return nil
}

// Seed writes every region. Rows for codes not in regions are left alone.
func (s *Store) Seed(ctx context.Context, regions []Region) error {
	for _, r := range regions {
		if err := s.Put(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
