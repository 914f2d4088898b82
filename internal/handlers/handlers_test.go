package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/heatshop-checkout/internal/cart"
	"github.com/imrishuroy/heatshop-checkout/internal/checkout"
	"github.com/imrishuroy/heatshop-checkout/internal/dynamotest"
	"github.com/imrishuroy/heatshop-checkout/internal/idempotency"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/payment"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
	"github.com/imrishuroy/heatshop-checkout/internal/shipping"
)

const (
	boiler   = "6b1d2c3e-0000-4000-8000-000000000001"
	radiator = "6b1d2c3e-0000-4000-8000-000000000002"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testAPI struct {
	router   *gin.Engine
	fake     *dynamotest.Fake
	products *inventory.Store
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	fake := dynamotest.New()
	fake.CreateTable("regions", "code", "")
	fake.CreateTable("products", "product_id", "")
	fake.CreateTable("carts", "owner_key", "")
	fake.CreateTable("orders", "order_id", "")
	fake.CreateTable("order_items", "order_id", "line")
	fake.CreateTable("idempotency", "idempotency_key", "")

	regionStore := regions.NewStore(fake, "regions")
	seed, err := regions.LoadSeed()
	require.NoError(t, err)
	require.NoError(t, regionStore.Seed(ctx, seed))
	catalog := regions.NewCatalog(regionStore, time.Minute)

	products := inventory.NewStore(fake, "products")
	require.NoError(t, products.PutProduct(ctx, inventory.Product{ProductID: boiler, Name: "Chaudière murale", Price: money.New(85000), Stock: 2, Active: true}))
	require.NoError(t, products.PutProduct(ctx, inventory.Product{ProductID: radiator, Name: "Radiateur", Price: money.New(1200), Stock: 50, Active: true}))
	gate := inventory.NewGate(products)

	carts := cart.NewService(cart.Deps{
		Guests:          cart.NewGuestStore(rdb, "test:cart", time.Hour),
		Customers:       cart.NewCustomerStore(fake, "carts"),
		Products:        gate,
		MaxLineQuantity: 99,
	})
	resolver := shipping.NewResolver(catalog, money.New(800), nil)
	idem := idempotency.NewStore(fake, "idempotency", 48*time.Hour)
	svc, err := checkout.NewService(checkout.Deps{
		Inventory:   gate,
		Shipping:    resolver,
		Payments:    payment.NewGate(),
		Orders:      orders.NewStore(fake, "orders", "order_items", products),
		Idempotency: idem,
		Carts:       carts,
	})
	require.NoError(t, err)

	r := gin.New()
	r.Use(logging.Middleware(nil))
	Register(r, Config{
		Regions:     catalog,
		Shipping:    resolver,
		Carts:       carts,
		Checkout:    svc,
		Idempotency: idem,
	})
	return testAPI{router: r, fake: fake, products: products}
}

func (a testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func customer(id string) map[string]string { return map[string]string{DefaultIdentityHeader: id} }

func orderBody(productID string, qty int) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": qty}},
		"shipping_address": map[string]any{
			"street": "12 rue Didouche Mourad", "city": "Alger", "region_code": "16", "country": "DZ",
		},
		"payment_method": "CASH_ON_DELIVERY",
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w, body := api.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get(logging.RequestIDHeader))
}

func TestRegionsAndShipping(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodGet, "/regions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := body["regions"].([]any)
	assert.Len(t, list, 58)
	assert.Equal(t, "01", list[0].(map[string]any)["code"])

	w, body = api.do(t, http.MethodGet, "/regions/16", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alger", body["name"])

	w, body = api.do(t, http.MethodGet, "/regions/7", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["error"])

	w, _ = api.do(t, http.MethodGet, "/regions/77", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(t, http.MethodGet, "/shipping/16", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(400), body["shipping_cost"])

	w, body = api.do(t, http.MethodGet, "/shipping/99", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(800), body["shipping_cost"])
	assert.Equal(t, true, body["fallback"])
}

func TestCustomerCartRoutes(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodGet, "/cart", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", body["error"])

	h := customer("cust-1")
	w, body = api.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": radiator, "quantity": 2, "unit_price": 1}, h)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2400), body["total"], "price comes from the product, not the client")

	w, body = api.do(t, http.MethodPatch, "/cart/items/"+radiator, map[string]any{"quantity": 5}, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(6000), body["total"])

	w, body = api.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "not-a-uuid", "quantity": 1}, h)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["fields"], "product_id")

	w, body = api.do(t, http.MethodDelete, "/cart/items/"+radiator, nil, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["items"])

	w, _ = api.do(t, http.MethodDelete, "/cart", nil, h)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGuestCartAndMerge(t *testing.T) {
	api := newTestAPI(t)

	w, _ := api.do(t, http.MethodGet, "/guest/cart", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	guest := map[string]string{GuestSessionHeader: "sess-1"}
	w, body := api.do(t, http.MethodPost, "/guest/cart/items", map[string]any{"product_id": radiator, "quantity": 3}, guest)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(3600), body["total"])

	h := customer("cust-1")
	w, body = api.do(t, http.MethodPost, "/cart/merge", map[string]any{"guest_session": "sess-1"}, h)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, float64(3600), body["cart"].(map[string]any)["total"])

	w, body = api.do(t, http.MethodGet, "/guest/cart", nil, guest)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["items"])
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	api := newTestAPI(t)
	h := customer("cust-1")
	h[IdempotencyKeyHeader] = "checkout-1"

	first, body := api.do(t, http.MethodPost, "/orders", orderBody(radiator, 2), h)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, float64(2400), body["subtotal"])
	assert.Equal(t, float64(400), body["shipping_amount"])
	assert.Equal(t, float64(2800), body["total_amount"])

	second, _ := api.do(t, http.MethodPost, "/orders", orderBody(radiator, 2), h)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, api.fake.Len("orders"))

	p, err := api.products.Get(context.Background(), radiator)
	require.NoError(t, err)
	assert.Equal(t, 48, p.Stock)

	other := customer("cust-2")
	other[IdempotencyKeyHeader] = "checkout-1"
	w, _ := api.do(t, http.MethodPost, "/orders", orderBody(radiator, 1), other)
	assert.Equal(t, http.StatusCreated, w.Code, "keys are scoped per customer")
	assert.Equal(t, 2, api.fake.Len("orders"))
}

func TestCreateOrder_InProgressKey(t *testing.T) {
	api := newTestAPI(t)
	ok, err := idempotency.NewStore(api.fake, "idempotency", time.Hour).CreateIfNotExists(context.Background(), "customer#cust-1:k", "order-9")
	require.NoError(t, err)
	require.True(t, ok)

	h := customer("cust-1")
	h[IdempotencyKeyHeader] = "k"
	w, body := api.do(t, http.MethodPost, "/orders", orderBody(radiator, 1), h)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "order-9", body["order_id"])
	assert.Equal(t, 0, api.fake.Len("orders"))
}

func TestCreateOrder_Errors(t *testing.T) {
	api := newTestAPI(t)
	h := customer("cust-1")

	w, body := api.do(t, http.MethodPost, "/orders", orderBody(boiler, 3), h)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.Equal(t, boiler, body["product_id"])

	card := orderBody(radiator, 1)
	card["payment_method"] = "CARD"
	w, body = api.do(t, http.MethodPost, "/orders", card, h)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "payment_method_disabled", body["error"])

	w, body = api.do(t, http.MethodPost, "/orders", map[string]any{"items": []any{}}, h)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["fields"], "items")

	w, _ = api.do(t, http.MethodPost, "/orders", orderBody(radiator, 1), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, api.fake.Len("orders"))
}

func TestGuestOrder(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/guest/orders", orderBody(radiator, 1), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["fields"], "contact.phone")

	req := orderBody(radiator, 1)
	req["contact"] = map[string]any{"name": "Samia", "email": "samia@example.dz", "phone": "0661 23 45 67"}
	w, body = api.do(t, http.MethodPost, "/guest/orders", req, map[string]string{GuestSessionHeader: "sess-7"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Regexp(t, `^GST-`, body["order_number"])
}

func TestGuestOrder_IdempotencyKeyNeedsSession(t *testing.T) {
	api := newTestAPI(t)
	req := orderBody(radiator, 1)
	req["contact"] = map[string]any{"name": "Samia", "email": "samia@example.dz", "phone": "0661234567"}

	w, body := api.do(t, http.MethodPost, "/guest/orders", req, map[string]string{IdempotencyKeyHeader: "k-1"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, body["fields"], GuestSessionHeader)

	first, firstBody := api.do(t, http.MethodPost, "/guest/orders", req,
		map[string]string{IdempotencyKeyHeader: "k-1", GuestSessionHeader: "sess-a"})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	other, otherBody := api.do(t, http.MethodPost, "/guest/orders", req,
		map[string]string{IdempotencyKeyHeader: "k-1", GuestSessionHeader: "sess-b"})
	require.Equal(t, http.StatusCreated, other.Code, other.Body.String())
	assert.NotEqual(t, firstBody["order_id"], otherBody["order_id"])
}

func TestOrderReadAndCancel(t *testing.T) {
	api := newTestAPI(t)
	h := customer("cust-1")

	w, body := api.do(t, http.MethodPost, "/orders", orderBody(boiler, 2), h)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := body["order_id"].(string)

	w, body = api.do(t, http.MethodGet, "/orders", nil, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["orders"], 1)

	w, body = api.do(t, http.MethodGet, "/orders/"+orderID, nil, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", body["status"])
	assert.Len(t, body["items"], 1)

	w, _ = api.do(t, http.MethodGet, "/orders/"+orderID, nil, customer("cust-2"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodGet, "/orders/missing", nil, h)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", map[string]any{"reason": "changed my mind"}, h)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", body["status"])

	p, err := api.products.Get(context.Background(), boiler)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)

	w, body = api.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", nil, h)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", body["error"])
}

func TestValidateCartRoute(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/checkout/validate", map[string]any{
		"items":       []map[string]any{{"product_id": radiator, "quantity": 1}, {"product_id": boiler, "quantity": 5}},
		"region_code": "16",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, float64(1200), body["subtotal"])
	assert.Equal(t, float64(1600), body["total_amount"])
}
