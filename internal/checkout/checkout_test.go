package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/cart"
	"github.com/imrishuroy/heatshop-checkout/internal/dynamotest"
	"github.com/imrishuroy/heatshop-checkout/internal/events"
	"github.com/imrishuroy/heatshop-checkout/internal/idempotency"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/payment"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
	"github.com/imrishuroy/heatshop-checkout/internal/shipping"
)

const (
	productW = "3f9a1c2e-0000-4000-8000-00000000000a"
	productY = "3f9a1c2e-0000-4000-8000-00000000000b"
	productZ = "3f9a1c2e-0000-4000-8000-00000000000c"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, ev events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type recordingCarts struct {
	mu      sync.Mutex
	cleared []cart.Owner
}

func (r *recordingCarts) Clear(ctx context.Context, owner cart.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, owner)
	return nil
}

type captureMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
	values map[string]float64
}

func (m *captureMetrics) Count(ctx context.Context, name string, value float64, dims map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := name
	if r, ok := dims["Reason"]; ok {
		key += ":" + r
	}
	m.counts[key] += value
}

func (m *captureMetrics) Value(ctx context.Context, name string, value float64, dims map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

type fixture struct {
	svc       *Service
	fake      *dynamotest.Fake
	products  *inventory.Store
	publisher *capturePublisher
	carts     *recordingCarts
	metrics   *captureMetrics
}

func newFixture(t *testing.T, threshold money.Amount) fixture {
	t.Helper()
	ctx := context.Background()
	fake := dynamotest.New()
	fake.CreateTable("regions", "code", "")
	fake.CreateTable("products", "product_id", "")
	fake.CreateTable("orders", "order_id", "")
	fake.CreateTable("order_items", "order_id", "line")
	fake.CreateTable("idempotency", "idempotency_key", "")

	regionStore := regions.NewStore(fake, "regions")
	seed, err := regions.LoadSeed()
	require.NoError(t, err)
	require.NoError(t, regionStore.Seed(ctx, seed))

	products := inventory.NewStore(fake, "products")
	for _, p := range []inventory.Product{
		{ProductID: productW, Name: "Vase d'expansion", Price: money.New(2500), Stock: 10, Active: true},
		{ProductID: productY, Name: "Chaudière 24kW", Price: money.New(85000), Stock: 4, Active: true},
		{ProductID: productZ, Name: "Radiateur alu", Price: money.New(1200), Stock: 3, Active: true},
	} {
		require.NoError(t, products.PutProduct(ctx, p))
	}

	f := fixture{
		fake:      fake,
		products:  products,
		publisher: &capturePublisher{},
		carts:     &recordingCarts{},
		metrics:   &captureMetrics{counts: map[string]float64{}, values: map[string]float64{}},
	}
	f.svc, err = NewService(Deps{
		Inventory:             inventory.NewGate(products),
		Shipping:              shipping.NewResolver(regions.NewCatalog(regionStore, time.Minute), money.New(800), nil),
		Payments:              payment.NewGate(),
		Orders:                orders.NewStore(fake, "orders", "order_items", products),
		Idempotency:           idempotency.NewStore(fake, "idempotency", 48*time.Hour),
		Carts:                 f.carts,
		Events:                f.publisher,
		Metrics:               f.metrics,
		FreeShippingThreshold: threshold,
	})
	require.NoError(t, err)
	return f
}

func (f fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func customerInput(customerID string, lines ...Line) Input {
	return Input{
		CustomerID:    customerID,
		Address:       orders.Address{Street: "5 rue Larbi Ben M'hidi", City: "Alger", RegionCode: "16", Country: "DZ"},
		Items:         lines,
		PaymentMethod: payment.MethodCashOnDelivery,
	}
}

func TestCreateOrder_InsufficientStockNamesProduct(t *testing.T) {
	f := newFixture(t, money.Zero)

	_, err := f.svc.CreateOrder(context.Background(), customerInput("cust-1", Line{ProductID: productY, Quantity: 10}))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
	e, _ := apperr.As(err)
	assert.Equal(t, productY, e.ProductID)

	assert.Equal(t, 0, f.fake.Len("orders"))
	assert.Equal(t, 4, f.stock(t, productY))
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, float64(1), f.metrics.counts[MetricOrdersRejected+":insufficient_stock"])
}

func TestCreateOrder_UsesAuthoritativePrices(t *testing.T) {
	f := newFixture(t, money.Zero)
	declared := money.New(999 + 400)

	in := customerInput("cust-1", Line{ProductID: productZ, Quantity: 1, DeclaredPrice: money.New(999)})
	in.DeclaredTotal = &declared
	res, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, res.Subtotal.Eq(money.New(1200)), res.Subtotal.String())
	assert.True(t, res.ShippingAmount.Eq(money.New(400)))
	assert.True(t, res.TotalAmount.Eq(money.New(1600)))
	assert.True(t, res.TotalAmount.Eq(res.Subtotal.Plus(res.ShippingAmount)))
	assert.Equal(t, orders.StatusPending, res.Status)
	assert.Regexp(t, `^CMD-`, res.OrderNumber)
	assert.Regexp(t, `^COD-`, res.PaymentReference)
	assert.Equal(t, float64(201), f.metrics.values[MetricOrderTotalDrift])

	stored, err := f.svc.GetOrder(context.Background(), "cust-1", res.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, stored.Items[0].UnitPrice.Eq(money.New(1200)))
	assert.Equal(t, 2, f.stock(t, productZ))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeOrderCreated, f.publisher.events[0].Type)
	assert.Equal(t, []cart.Owner{cart.Customer("cust-1")}, f.carts.cleared)
}

func TestCreateOrder_PaymentMethodDisabled(t *testing.T) {
	f := newFixture(t, money.Zero)

	in := customerInput("cust-1", Line{ProductID: productZ, Quantity: 1})
	in.PaymentMethod = "CREDIT_CARD"
	_, err := f.svc.CreateOrder(context.Background(), in)
	assert.Equal(t, apperr.KindPaymentMethodDisabled, apperr.KindOf(err))
	assert.Equal(t, 0, f.fake.Len("orders"))
	assert.Equal(t, 3, f.stock(t, productZ))
	assert.Empty(t, f.carts.cleared)
}

func TestCreateOrder_EmptyCartIsValidationError(t *testing.T) {
	f := newFixture(t, money.Zero)

	_, err := f.svc.CreateOrder(context.Background(), customerInput("cust-1"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	e, _ := apperr.As(err)
	assert.Contains(t, e.Fields, "items")
}

func TestCreateOrder_LastUnitBoundary(t *testing.T) {
	f := newFixture(t, money.Zero)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, customerInput("cust-1", Line{ProductID: productZ, Quantity: 3}))
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, productZ))

	_, err = f.svc.CreateOrder(ctx, customerInput("cust-2", Line{ProductID: productZ, Quantity: 1}))
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
	assert.Equal(t, 0, f.stock(t, productZ))
}

func TestCreateOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t, money.Zero)
	ctx := context.Background()

	const buyers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, customerInput("buyer", Line{ProductID: productY, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			switch apperr.KindOf(err) {
			case "":
				placed++
			case apperr.KindInsufficientStock:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, placed)
	assert.Equal(t, buyers-4, rejected)
	assert.Equal(t, 0, f.stock(t, productY))
	assert.Equal(t, 4, f.fake.Len("orders"))
}

func TestCreateOrder_FoldsDuplicateLines(t *testing.T) {
	f := newFixture(t, money.Zero)

	res, err := f.svc.CreateOrder(context.Background(), customerInput("cust-1",
		Line{ProductID: productW, Quantity: 1},
		Line{ProductID: productZ, Quantity: 1},
		Line{ProductID: productW, Quantity: 2},
	))
	require.NoError(t, err)
	assert.True(t, res.Subtotal.Eq(money.New(3*2500+1200)))

	o, err := f.svc.GetOrder(context.Background(), "cust-1", res.OrderID)
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, productW, o.Items[0].ProductID)
	assert.Equal(t, 3, o.Items[0].Quantity)
}

func TestCreateOrder_ShippingRules(t *testing.T) {
	f := newFixture(t, money.New(5000))
	ctx := context.Background()

	in := customerInput("cust-1", Line{ProductID: productZ, Quantity: 1})
	in.Address.RegionCode = "99"
	res, err := f.svc.CreateOrder(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.ShippingAmount.Eq(money.New(800)), "unknown wilaya uses the fallback cost")
	assert.False(t, res.FreeShipping)

	res, err = f.svc.CreateOrder(ctx, customerInput("cust-1", Line{ProductID: productW, Quantity: 2}))
	require.NoError(t, err)
	assert.True(t, res.FreeShipping)
	assert.True(t, res.ShippingAmount.IsZero())
	assert.True(t, res.TotalAmount.Eq(money.New(5000)))
}

func TestCreateOrder_GuestRequiresContact(t *testing.T) {
	f := newFixture(t, money.Zero)
	ctx := context.Background()

	in := customerInput("", Line{ProductID: productZ, Quantity: 1})
	_, err := f.svc.CreateOrder(ctx, in)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	e, _ := apperr.As(err)
	assert.Contains(t, e.Fields, "contact.phone")

	in.Contact = orders.Contact{Name: "Karim", Email: "karim@example.dz", Phone: "+213661234567"}
	in.GuestSession = "sess-42"
	res, err := f.svc.CreateOrder(ctx, in)
	require.NoError(t, err)
	assert.Regexp(t, `^GST-`, res.OrderNumber)
	assert.Equal(t, []cart.Owner{cart.Guest("sess-42")}, f.carts.cleared)
}

func TestCreateOrder_IdempotencyKeyBlocksSecondOrder(t *testing.T) {
	f := newFixture(t, money.Zero)
	ctx := context.Background()

	in := customerInput("cust-1", Line{ProductID: productW, Quantity: 1})
	in.IdempotencyKey = "key-123"
	_, err := f.svc.CreateOrder(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, in)
	assert.Equal(t, apperr.KindDuplicateRequest, apperr.KindOf(err))
	assert.Equal(t, 9, f.stock(t, productW))
	assert.Equal(t, 1, f.fake.Len("orders"))
}

func TestCreateOrder_PublishFailureKeepsOrder(t *testing.T) {
	f := newFixture(t, money.Zero)
	f.publisher.err = errors.New("queue unavailable")

	res, err := f.svc.CreateOrder(context.Background(), customerInput("cust-1", Line{ProductID: productW, Quantity: 1}))
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, 1, f.fake.Len("orders"))
}

func TestCreateOrder_StoreOutageIsInfrastructure(t *testing.T) {
	f := newFixture(t, money.Zero)
	f.fake.FailOn("TransactWriteItems", errors.New("throttled"))

	_, err := f.svc.CreateOrder(context.Background(), customerInput("cust-1", Line{ProductID: productW, Quantity: 1}))
	assert.Equal(t, apperr.KindInfrastructure, apperr.KindOf(err))
	assert.Equal(t, 10, f.stock(t, productW))
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, money.Zero)
	ctx := context.Background()
	res, err := f.svc.CreateOrder(ctx, customerInput("cust-1", Line{ProductID: productY, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, productY))

	_, err = f.svc.CancelOrder(ctx, "intruder", res.OrderID, "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	o, err := f.svc.CancelOrder(ctx, "cust-1", res.OrderID, "ordered twice")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, 4, f.stock(t, productY))

	_, err = f.svc.CancelOrder(ctx, "cust-1", res.OrderID, "")
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Equal(t, 4, f.stock(t, productY))

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, events.TypeOrderCancelled, f.publisher.events[1].Type)
}

func TestTransition(t *testing.T) {
	f := newFixture(t, money.Zero)
	ctx := context.Background()
	res, err := f.svc.CreateOrder(ctx, customerInput("cust-1", Line{ProductID: productW, Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, f.svc.Transition(ctx, res.OrderID, orders.StatusConfirmed))
	require.NoError(t, f.svc.Transition(ctx, res.OrderID, orders.StatusConfirmed))

	err = f.svc.Transition(ctx, res.OrderID, orders.StatusPending)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	require.NoError(t, f.svc.Transition(ctx, res.OrderID, orders.StatusInProgress))
	require.NoError(t, f.svc.Transition(ctx, res.OrderID, orders.StatusCompleted))

	err = f.svc.Transition(ctx, res.OrderID, orders.StatusCancelled)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	err = f.svc.Transition(ctx, "missing", orders.StatusConfirmed)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, money.Zero)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.svc.CreateOrder(ctx, customerInput("cust-1", Line{ProductID: productW, Quantity: 1}))
		require.NoError(t, err)
	}
	list, err := f.svc.ListOrders(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.svc.ListOrders(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestValidateCart_Preview(t *testing.T) {
	f := newFixture(t, money.Zero)

	p, err := f.svc.ValidateCart(context.Background(), []Line{
		{ProductID: productZ, Quantity: 2, DeclaredPrice: money.New(1200)},
		{ProductID: productY, Quantity: 5},
	}, "16")
	require.NoError(t, err)
	assert.False(t, p.Valid)
	assert.Equal(t, inventory.LineInsufficientStock, p.Lines[1].Status)
	assert.True(t, p.Subtotal.Eq(money.New(2400)))
	assert.True(t, p.ShippingAmount.Eq(money.New(400)))
	assert.True(t, p.TotalAmount.Eq(money.New(2800)))
}
