package inventory

import (
	"context"
	"errors"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/dynamotest"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

const (
	boilerID   = "5b0c3f4e-7a8d-4c1e-9f2a-0d6e8b1c2a31"
	radiatorID = "8e2f1a9b-3c4d-4e5f-8a6b-7c8d9e0f1a2b"
	retiredID  = "1f2e3d4c-5b6a-4978-8a9b-0c1d2e3f4a5b"
)

func newStore(t *testing.T) (*Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("products", "product_id", "")
	s := NewStore(fake, "products")
	ctx := context.Background()
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: boilerID, Name: "Chaudière murale 24kW", Price: money.New(1200), Stock: 2, Active: true}))
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: radiatorID, Name: "Radiateur acier 600", Price: money.MustParse("4500.50"), Stock: 10, Active: true}))
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: retiredID, Name: "Thermostat", Price: money.New(900), Stock: 5, Active: false}))
	return s, fake
}

func TestCheckAvailability(t *testing.T) {
	s, _ := newStore(t)
	g := NewGate(s)
	ctx := context.Background()

	av, err := g.CheckAvailability(ctx, boilerID, 2)
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Equal(t, 2, av.CurrentStock)
	assert.True(t, av.Product.Price.Eq(money.New(1200)))

	av, err = g.CheckAvailability(ctx, boilerID, 3)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, 2, av.CurrentStock)
}

func TestCheckAvailability_UnavailableProducts(t *testing.T) {
	s, _ := newStore(t)
	g := NewGate(s)

	for _, id := range []string{retiredID, "00000000-0000-4000-8000-000000000000"} {
		_, err := g.CheckAvailability(context.Background(), id, 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindProductUnavailable, apperr.KindOf(err))
		e, _ := apperr.As(err)
		assert.Equal(t, id, e.ProductID)
	}
}

func TestCheckAvailability_StoreFailure(t *testing.T) {
	s, fake := newStore(t)
	fake.FailOn("GetItem", errors.New("throttled"))

	_, err := NewGate(s).CheckAvailability(context.Background(), boilerID, 1)
	assert.Equal(t, apperr.KindInfrastructure, apperr.KindOf(err))
}

func TestValidateCart_ReportsEveryLine(t *testing.T) {
	s, _ := newStore(t)
	res, err := NewGate(s).ValidateCart(context.Background(), []Line{
		{ProductID: boilerID, Quantity: 5},
		{ProductID: retiredID, Quantity: 1},
		{ProductID: radiatorID, Quantity: 2, DeclaredPrice: money.New(4000)},
	})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, LineInsufficientStock, res.Lines[0].Status)
	assert.Equal(t, LineUnavailable, res.Lines[1].Status)
	assert.Equal(t, LineOK, res.Lines[2].Status)
	assert.True(t, res.Lines[2].PriceChanged)
	assert.True(t, res.Subtotal.Eq(money.MustParse("9001.00")))
}

func TestDecrementOp_NeverGoesNegative(t *testing.T) {
	s, fake := newStore(t)
	ctx := context.Background()

	_, err := fake.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{s.DecrementOp(boilerID, 2)},
	})
	require.NoError(t, err)

	p, err := s.Get(ctx, boilerID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	_, err = fake.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{s.DecrementOp(boilerID, 1)},
	})
	var tce *types.TransactionCanceledException
	require.ErrorAs(t, err, &tce)

	p, err = s.Get(ctx, boilerID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestDecrementOp_RejectsInactiveProduct(t *testing.T) {
	s, fake := newStore(t)

	_, err := fake.TransactWriteItems(context.Background(), &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{s.DecrementOp(retiredID, 1)},
	})
	var tce *types.TransactionCanceledException
	assert.ErrorAs(t, err, &tce)
}

func TestRestockOp(t *testing.T) {
	s, fake := newStore(t)
	ctx := context.Background()

	_, err := fake.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{s.RestockOp(radiatorID, 3)},
	})
	require.NoError(t, err)

	p, err := s.Get(ctx, radiatorID)
	require.NoError(t, err)
	assert.Equal(t, 13, p.Stock)
}
