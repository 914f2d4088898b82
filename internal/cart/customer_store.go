package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/heatshop-checkout/internal/aws"
)

// CustomerStore keeps customer carts in the carts table (PK owner_key) and
// guards each write with the version read before it.
type CustomerStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewCustomerStore creates a DynamoDB-backed customer cart store.
func NewCustomerStore(client aws.DynamoDBAPI, tableName string) *CustomerStore {
	return &CustomerStore{client: client, tableName: tableName, nowFunc: time.Now}
}

// Load returns the customer's cart, or an empty one.
func (s *CustomerStore) Load(ctx context.Context, owner Owner) (Cart, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            map[string]types.AttributeValue{"owner_key": &types.AttributeValueMemberS{Value: owner.Key()}},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return Cart{}, fmt.Errorf("get cart: %w", err)
	}
	if len(out.Item) == 0 {
		return Cart{OwnerKey: owner.Key()}, nil
	}
	var c Cart
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return Cart{}, fmt.Errorf("unmarshal cart: %w", err)
	}
	return c, nil
}

// Mutate retries when another writer bumped the version in between.
func (s *CustomerStore) Mutate(ctx context.Context, owner Owner, fn func(*Cart) error) (Cart, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		c, err := s.Load(ctx, owner)
		if err != nil {
			return Cart{}, err
		}
		if c.CartID == "" {
			c.CartID = uuid.NewString()
		}
		expected := c.Version
		if err := fn(&c); err != nil {
			return Cart{}, err
		}
		c.OwnerKey = owner.Key()
		c.Version = expected + 1
		c.UpdatedAt = s.nowFunc().UTC()

		item, err := attributevalue.MarshalMap(c)
		if err != nil {
			return Cart{}, fmt.Errorf("marshal cart: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(owner_key) OR version = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
			},
		})
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			continue
		}
		if err != nil {
			return Cart{}, fmt.Errorf("put cart: %w", err)
		}
		return c, nil
	}
	return Cart{}, ErrConflict
}

// Clear empties the cart and drops its merge history. The row stays so the
// version keeps counting.
func (s *CustomerStore) Clear(ctx context.Context, owner Owner) error {
	_, err := s.Mutate(ctx, owner, func(c *Cart) error {
		c.reset()
		return nil
	})
	return err
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
