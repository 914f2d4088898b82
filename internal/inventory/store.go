package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/heatshop-checkout/internal/aws"
)

// ErrNotFound is returned by Get for a missing product.
var ErrNotFound = errors.New("product not found")

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// TableName is the products table the op builders target.
func (s *Store) TableName() string {
	return s.tableName
}

// Get reads a product with a strongly consistent read.
func (s *Store) Get(ctx context.Context, productID string) (Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            productKey(productID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	if len(out.Item) == 0 {
		return Product{}, ErrNotFound
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return Product{}, fmt.Errorf("unmarshal product: %w", err)
	}
	return p, nil
}

// PutProduct writes a product row, replacing any previous one.
func (s *Store) PutProduct(ctx context.Context, p Product) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.nowFunc()
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put product %s: %w", p.ProductID, err)
	}
	return nil
}

// DecrementOp removes qty units inside a transaction. The condition fails if
// the product vanished, was deactivated, or holds fewer than qty units.
func (s *Store) DecrementOp(productID string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:        &s.tableName,
			Key:              productKey(productID),
			UpdateExpression: awsString("SET stock = stock - :qty, updated_at = :ua"),
			ConditionExpression: awsString(
				"attribute_exists(product_id) AND active = :active AND stock >= :qty"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":qty":    &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
				":active": &types.AttributeValueMemberBOOL{Value: true},
				":ua":     &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
			},
		},
	}
}

// RestockOp returns qty units to a product that still exists.
func (s *Store) RestockOp(productID string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &s.tableName,
			Key:                 productKey(productID),
			UpdateExpression:    awsString("SET stock = stock + :qty, updated_at = :ua"),
			ConditionExpression: awsString("attribute_exists(product_id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":qty": &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
				":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
			},
		},
	}
}

func productKey(productID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: productID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
