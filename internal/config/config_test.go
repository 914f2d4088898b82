package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("EVENTS_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "orders", cfg.Tables.Orders)
	assert.Equal(t, "order_items", cfg.Tables.OrderItems)
	assert.Equal(t, EventsSQS, cfg.Events.Backend)
	assert.Equal(t, "DZD", cfg.Checkout.Currency)
	assert.Equal(t, "800.00", cfg.Checkout.FallbackShippingCost.String())
	assert.True(t, cfg.Checkout.FreeShippingThreshold.IsZero())
	assert.Equal(t, 99, cfg.Checkout.MaxLineQuantity)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Redis.GuestCartTTL)
	assert.Equal(t, "X-Customer-Id", cfg.IdentityHeader)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EVENTS_BACKEND", "RabbitMQ")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "50000")
	t.Setenv("SHIPPING_FALLBACK_COST", "950.50")
	t.Setenv("GUEST_CART_TTL", "72h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EventsRabbitMQ, cfg.Events.Backend)
	assert.Equal(t, "50000.00", cfg.Checkout.FreeShippingThreshold.String())
	assert.Equal(t, "950.50", cfg.Checkout.FallbackShippingCost.String())
	assert.Equal(t, 72*time.Hour, cfg.Redis.GuestCartTTL)
}

func TestLoad_CollectsMalformedValues(t *testing.T) {
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("MAX_LINE_QUANTITY", "lots")
	t.Setenv("REGION_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_LINE_QUANTITY")
	assert.Contains(t, err.Error(), "REGION_CACHE_TTL")
}

func TestValidate_SQSNeedsQueueOutsideLocal(t *testing.T) {
	t.Setenv("RUN_LOCAL", "false")
	t.Setenv("EVENTS_BACKEND", "sqs")
	t.Setenv("ORDERS_QUEUE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORDERS_QUEUE_URL")
}
