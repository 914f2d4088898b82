// Package dynamotest provides an in-memory DynamoDB used by package tests. It
// understands the small expression dialect the stores emit: AND/OR chains of
// comparisons and attribute_(not_)exists for conditions, and SET clauses with
// +/- arithmetic and if_not_exists for updates.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

type table struct {
	pk, sk string
	items  map[string]map[string]types.AttributeValue
}

// Fake is a concurrency-safe in-memory DynamoDB.
type Fake struct {
	mu       sync.Mutex
	tables   map[string]*table
	failures map[string]error
	calls    map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		tables:   map[string]*table{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

// CreateTable registers a table with its partition key and optional sort key.
func (f *Fake) CreateTable(name, pk, sk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{pk: pk, sk: sk, items: map[string]map[string]types.AttributeValue{}}
}

// FailOn makes every call of op ("PutItem", "TransactWriteItems", ...) return err.
// A nil err clears the failure.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Seed stores an item unconditionally.
func (f *Fake) Seed(tableName string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	key, err := t.keyOf(item)
	if err != nil {
		panic(err)
	}
	t.items[key] = clone(item)
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName string, pk string, sk ...string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	if t == nil {
		return nil
	}
	key := pk
	if len(sk) > 0 {
		key += "\x00" + sk[0]
	}
	return clone(t.items[key])
}

// Len returns the number of items in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t := f.tables[tableName]; t != nil {
		return len(t.items)
	}
	return 0
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	return f.failures[op]
}

func (f *Fake) table(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("dynamotest: missing table name")
	}
	t := f.tables[*name]
	if t == nil {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + *name)}
	}
	return t, nil
}

func (t *table) keyOf(item map[string]types.AttributeValue) (string, error) {
	pk, err := scalar(item[t.pk])
	if err != nil {
		return "", fmt.Errorf("dynamotest: partition key %s: %w", t.pk, err)
	}
	if t.sk == "" {
		return pk, nil
	}
	sk, err := scalar(item[t.sk])
	if err != nil {
		return "", fmt.Errorf("dynamotest: sort key %s: %w", t.sk, err)
	}
	return pk + "\x00" + sk, nil
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if err := check(params.ConditionExpression, t.items[key], params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	t.items[key] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: clone(t.items[key])}, nil
}

func (f *Fake) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	if err := check(params.ConditionExpression, t.items[key], params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	delete(t.items, key)
	return &dyn.DeleteItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	existing := t.items[key]
	if err := check(params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	updated, err := applyUpdate(params.UpdateExpression, existing, params.Key, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	t.items[key] = updated
	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues != types.ReturnValueNone && params.ReturnValues != "" {
		out.Attributes = clone(updated)
	}
	return out, nil
}

func (f *Fake) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("dynamotest: query without key condition")
	}
	items, err := t.filter(params.KeyConditionExpression, params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *Fake) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	items, err := t.filter(nil, params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (t *table) filter(keyCond, filterExpr *string, names map[string]string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return t.less(keys[i], keys[j]) })

	var out []map[string]types.AttributeValue
	for _, k := range keys {
		item := t.items[k]
		for _, expr := range []*string{keyCond, filterExpr} {
			if expr == nil {
				continue
			}
			ok, err := evalCondition(*expr, item, names, values)
			if err != nil {
				return nil, err
			}
			if !ok {
				item = nil
				break
			}
		}
		if item != nil {
			out = append(out, clone(item))
		}
	}
	return out, nil
}

// less orders by partition key, then numerically by sort key when both parse as numbers.
func (t *table) less(a, b string) bool {
	apk, ask, _ := strings.Cut(a, "\x00")
	bpk, bsk, _ := strings.Cut(b, "\x00")
	if apk != bpk {
		return apk < bpk
	}
	ad, aerr := decimal.NewFromString(ask)
	bd, berr := decimal.NewFromString(bsk)
	if aerr == nil && berr == nil {
		return ad.LessThan(bd)
	}
	return ask < bsk
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(params.TransactItems) == 0 || len(params.TransactItems) > 100 {
		return nil, fmt.Errorf("dynamotest: transaction size %d out of range", len(params.TransactItems))
	}

	type write struct {
		t   *table
		key string
		// exactly one of put/update/del is set; ConditionCheck writes nothing
		put    map[string]types.AttributeValue
		update *types.Update
		del    bool
	}

	writes := make([]write, len(params.TransactItems))
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	seen := map[string]bool{}
	cancelled := false

	for i, it := range params.TransactItems {
		var (
			tableName *string
			keyItem   map[string]types.AttributeValue
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
			w         write
		)
		switch {
		case it.Put != nil:
			tableName, keyItem, cond, names, values = it.Put.TableName, it.Put.Item, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
			w.put = it.Put.Item
		case it.Update != nil:
			tableName, keyItem, cond, names, values = it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
			w.update = it.Update
		case it.Delete != nil:
			tableName, keyItem, cond, names, values = it.Delete.TableName, it.Delete.Key, it.Delete.ConditionExpression, it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
			w.del = true
		case it.ConditionCheck != nil:
			tableName, keyItem, cond, names, values = it.ConditionCheck.TableName, it.ConditionCheck.Key, it.ConditionCheck.ConditionExpression, it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
		default:
			return nil, fmt.Errorf("dynamotest: empty transact item %d", i)
		}
		t, err := f.table(tableName)
		if err != nil {
			return nil, err
		}
		key, err := t.keyOf(keyItem)
		if err != nil {
			return nil, err
		}
		id := *tableName + "/" + key
		if seen[id] {
			return nil, errors.New("dynamotest: transaction cannot include multiple operations on one item")
		}
		seen[id] = true
		w.t, w.key = t, key
		writes[i] = w

		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		ok, err := evalCondition(deref(cond), t.items[key], names, values)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{
				Code:    strPtr("ConditionalCheckFailed"),
				Message: strPtr("The conditional request failed"),
			}
			cancelled = true
		}
	}

	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	// Compute every result before mutating so an update error leaves no partial state.
	results := make([]map[string]types.AttributeValue, len(writes))
	for i, w := range writes {
		switch {
		case w.put != nil:
			results[i] = clone(w.put)
		case w.update != nil:
			updated, err := applyUpdate(w.update.UpdateExpression, w.t.items[w.key], w.update.Key, w.update.ExpressionAttributeNames, w.update.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			results[i] = updated
		}
	}
	for i, w := range writes {
		switch {
		case w.del:
			delete(w.t.items, w.key)
		case results[i] != nil:
			w.t.items[w.key] = results[i]
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func check(cond *string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	ok, err := evalCondition(deref(cond), item, names, values)
	if err != nil {
		return err
	}
	if !ok {
		return &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func scalar(av types.AttributeValue) (string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case nil:
		return "", errors.New("missing")
	default:
		return "", fmt.Errorf("unsupported key type %T", av)
	}
}
