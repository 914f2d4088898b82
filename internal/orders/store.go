package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/heatshop-checkout/internal/aws"
)

// MaxLines bounds distinct products per order. Each line costs two
// transaction operations and DynamoDB caps a transaction at 100.
const MaxLines = 40

// CustomerIndex is the GSI on orders keyed by customer_id.
const CustomerIndex = "customer_id-index"

var (
	// ErrStatusMismatch is returned when the stored status is not the expected one.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicateRequest means the idempotency key was already used.
	ErrDuplicateRequest = errors.New("idempotency key already used")
	// ErrOrderExists means the order id is already taken.
	ErrOrderExists = errors.New("order already exists")
	// ErrTooManyLines is returned by Place for orders over MaxLines.
	ErrTooManyLines = fmt.Errorf("order exceeds %d lines", MaxLines)
)

// StockConflictError names the product whose conditional decrement failed.
type StockConflictError struct {
	ProductID string
	Quantity  int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock condition failed for product %s (quantity %d)", e.ProductID, e.Quantity)
}

// StockOps builds the conditional stock writes included in order transactions.
type StockOps interface {
	DecrementOp(productID string, qty int) types.TransactWriteItem
	RestockOp(productID string, qty int) types.TransactWriteItem
}

// Store encapsulates operations on the orders and order_items tables.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	itemsTable string
	stock      StockOps
	nowFunc    func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, itemsTable string, stock StockOps) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		itemsTable: itemsTable,
		stock:      stock,
		nowFunc:    time.Now,
	}
}

// Place atomically writes, in one TransactWriteItems call:
//   - the order row (attribute_not_exists(order_id))
//   - one order_items row per line
//   - a conditional stock decrement per line
//   - guard, when non-nil (the idempotency record)
//
// A cancelled transaction is mapped back to the operation that failed it:
// *StockConflictError, ErrDuplicateRequest or ErrOrderExists. Nothing is
// written in any failure case.
func (s *Store) Place(ctx context.Context, order Order, guard *types.TransactWriteItem) error {
	if len(order.Items) == 0 {
		return errors.New("order has no items")
	}
	if len(order.Items) > MaxLines {
		return ErrTooManyLines
	}
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := make([]types.TransactWriteItem, 0, 2*len(order.Items)+2)
	transactItems = append(transactItems, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	})
	for i, it := range order.Items {
		it.OrderID = order.OrderID
		it.Line = i + 1
		itemMap, err := attributevalue.MarshalMap(it)
		if err != nil {
			return fmt.Errorf("marshal order line %d: %w", it.Line, err)
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{TableName: &s.itemsTable, Item: itemMap},
		})
	}
	stockStart := len(transactItems)
	for _, it := range order.Items {
		transactItems = append(transactItems, s.stock.DecrementOp(it.ProductID, it.Quantity))
	}
	guardIndex := -1
	if guard != nil {
		guardIndex = len(transactItems)
		transactItems = append(transactItems, *guard)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("transact write: %w", err)
	}
	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
			continue
		}
		switch {
		case i == 0:
			return ErrOrderExists
		case i == guardIndex:
			return ErrDuplicateRequest
		case i >= stockStart && i < stockStart+len(order.Items):
			line := order.Items[i-stockStart]
			return &StockConflictError{ProductID: line.ProductID, Quantity: line.Quantity}
		}
	}
	return fmt.Errorf("transaction canceled: %w", err)
}

// Get fetches an order and its lines by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	key := map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            key,
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	items, err := s.items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *Store) items(ctx context.Context, orderID string) ([]OrderItem, error) {
	var (
		out   []OrderItem
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.itemsTable,
			KeyConditionExpression: awsString("order_id = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: orderID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query order items: %w", err)
		}
		var items []OrderItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

// ListByCustomer returns the customer's orders, newest first, without lines.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	var (
		out   []Order
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(CustomerIndex),
			KeyConditionExpression: awsString("customer_id = :c"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: customerID},
			},
			ScanIndexForward:  awsBool(false),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query customer orders: %w", err)
		}
		var orders []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &orders); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, orders...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expectedStatus, newStatus Status) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
			":expected": &types.AttributeValueMemberS{Value: string(expectedStatus)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Cancel moves the order to CANCELLED and returns every line's quantity to
// stock in one transaction. ErrStatusMismatch means the order left
// expectedStatus in the meantime.
func (s *Store) Cancel(ctx context.Context, order Order, expectedStatus Status, reason string) error {
	now := s.nowFunc().UTC().Format(time.RFC3339)
	transactItems := []types.TransactWriteItem{{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"order_id": &types.AttributeValueMemberS{Value: order.OrderID},
			},
			UpdateExpression:         awsString("SET #s = :cancelled, updated_at = :ua, cancelled_at = :ua, cancel_reason = :r"),
			ConditionExpression:      awsString("#s = :expected"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cancelled": &types.AttributeValueMemberS{Value: string(StatusCancelled)},
				":expected":  &types.AttributeValueMemberS{Value: string(expectedStatus)},
				":ua":        &types.AttributeValueMemberS{Value: now},
				":r":         &types.AttributeValueMemberS{Value: reason},
			},
		},
	}}
	for _, it := range order.Items {
		transactItems = append(transactItems, s.stock.RestockOp(it.ProductID, it.Quantity))
	}

	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) && len(tce.CancellationReasons) > 0 {
		if c := tce.CancellationReasons[0].Code; c != nil && *c == "ConditionalCheckFailed" {
			return ErrStatusMismatch
		}
	}
	return fmt.Errorf("cancel order %s: %w", order.OrderID, err)
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
