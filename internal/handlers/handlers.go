// Package handlers exposes the storefront checkout over HTTP with gin.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/cart"
	"github.com/imrishuroy/heatshop-checkout/internal/checkout"
	"github.com/imrishuroy/heatshop-checkout/internal/idempotency"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
	"github.com/imrishuroy/heatshop-checkout/internal/orders"
	"github.com/imrishuroy/heatshop-checkout/internal/regions"
	"github.com/imrishuroy/heatshop-checkout/internal/shipping"
	"github.com/imrishuroy/heatshop-checkout/internal/validation"
)

// Header names understood by the API.
const (
	DefaultIdentityHeader = "X-Customer-Id"
	GuestSessionHeader    = "X-Guest-Session"
	IdempotencyKeyHeader  = "Idempotency-Key"
)

// RegionCatalog serves the wilaya list.
type RegionCatalog interface {
	ListActive(ctx context.Context) ([]regions.Region, error)
	GetByCode(ctx context.Context, code string) (regions.Region, error)
}

// ShippingResolver quotes delivery for a wilaya.
type ShippingResolver interface {
	Resolve(ctx context.Context, code string) shipping.Quote
}

// CartService is the cart API used by the routes.
type CartService interface {
	Get(ctx context.Context, owner cart.Owner) (cart.Cart, error)
	AddItem(ctx context.Context, owner cart.Owner, item cart.Item) (cart.Cart, error)
	UpdateQuantity(ctx context.Context, owner cart.Owner, productID string, qty int) (cart.Cart, error)
	RemoveItem(ctx context.Context, owner cart.Owner, productID string) (cart.Cart, error)
	Replace(ctx context.Context, owner cart.Owner, items []cart.Item) (cart.Cart, error)
	Clear(ctx context.Context, owner cart.Owner) error
	Merge(ctx context.Context, source cart.MergeSource, customer cart.Owner) (cart.MergeResult, error)
}

// Checkout is the order API used by the routes.
type Checkout interface {
	CreateOrder(ctx context.Context, in checkout.Input) (checkout.Result, error)
	GetOrder(ctx context.Context, customerID, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, customerID string) ([]orders.Order, error)
	CancelOrder(ctx context.Context, customerID, orderID, reason string) (*orders.Order, error)
	ValidateCart(ctx context.Context, lines []checkout.Line, regionCode string) (checkout.Preview, error)
}

// IdempotencyStore answers retried order submissions.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
}

// Config groups dependencies for the routes. Idempotency is optional.
type Config struct {
	Regions        RegionCatalog
	Shipping       ShippingResolver
	Carts          CartService
	Checkout       Checkout
	Idempotency    IdempotencyStore
	Validator      *validatorv10.Validate
	IdentityHeader string
	Logger         *zap.Logger
}

type api struct {
	regions        RegionCatalog
	shipping       ShippingResolver
	carts          CartService
	checkout       Checkout
	idempotency    IdempotencyStore
	validate       *validatorv10.Validate
	identityHeader string
	logger         *zap.Logger
}

// Register mounts every route on r.
func Register(r gin.IRouter, cfg Config) {
	a := &api{
		regions:        cfg.Regions,
		shipping:       cfg.Shipping,
		carts:          cfg.Carts,
		checkout:       cfg.Checkout,
		idempotency:    cfg.Idempotency,
		validate:       cfg.Validator,
		identityHeader: cfg.IdentityHeader,
		logger:         cfg.Logger,
	}
	if a.validate == nil {
		a.validate = validation.New()
	}
	if a.identityHeader == "" {
		a.identityHeader = DefaultIdentityHeader
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/regions", a.listRegions)
	r.GET("/regions/:code", a.getRegion)
	r.GET("/shipping/:code", a.quoteShipping)
	r.POST("/checkout/validate", a.validateCart)

	customer := r.Group("/", a.requireCustomer)
	customer.GET("/cart", a.getCart(customerOwner))
	customer.PUT("/cart", a.replaceCart)
	customer.POST("/cart/items", a.addItem(customerOwner))
	customer.PATCH("/cart/items/:productId", a.updateItem(customerOwner))
	customer.DELETE("/cart/items/:productId", a.removeItem(customerOwner))
	customer.DELETE("/cart", a.clearCart(customerOwner))
	customer.POST("/cart/merge", a.mergeCart)
	customer.POST("/orders", a.createOrder)
	customer.GET("/orders", a.listOrders)
	customer.GET("/orders/:id", a.getOrder)
	customer.POST("/orders/:id/cancel", a.cancelOrder)

	guest := r.Group("/guest")
	guest.POST("/orders", a.createGuestOrder)
	guestCart := guest.Group("/cart", requireGuestSession)
	guestCart.GET("", a.getCart(guestOwner))
	guestCart.POST("/items", a.addItem(guestOwner))
	guestCart.PATCH("/items/:productId", a.updateItem(guestOwner))
	guestCart.DELETE("/items/:productId", a.removeItem(guestOwner))
	guestCart.DELETE("", a.clearCart(guestOwner))
}

func (a *api) listRegions(c *gin.Context) {
	list, err := a.regions.ListActive(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": list})
}

func (a *api) getRegion(c *gin.Context) {
	r, err := a.regions.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// quoteShipping never fails: unknown codes get the fallback quote.
func (a *api) quoteShipping(c *gin.Context) {
	c.JSON(http.StatusOK, a.shipping.Resolve(c.Request.Context(), c.Param("code")))
}

func (a *api) validateCart(c *gin.Context) {
	var req validation.ValidateCartRequest
	if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
		return
	}
	p, err := a.checkout.ValidateCart(c.Request.Context(), toLines(req.Items), req.RegionCode)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func toLines(items []validation.CartItemRequest) []checkout.Line {
	out := make([]checkout.Line, 0, len(items))
	for _, it := range items {
		out = append(out, checkout.Line{ProductID: it.ProductID, Quantity: it.Quantity, DeclaredPrice: it.UnitPrice})
	}
	return out
}

func toItems(items []validation.CartItemRequest) []cart.Item {
	out := make([]cart.Item, 0, len(items))
	for _, it := range items {
		out = append(out, toItem(it))
	}
	return out
}

func toItem(it validation.CartItemRequest) cart.Item {
	return cart.Item{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Name: it.Name, ImageRef: it.ImageRef}
}

// cartView adds the derived total to the stored cart.
type cartView struct {
	cart.Cart
	Total money.Amount `json:"total"`
}

func viewOf(c cart.Cart) cartView {
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	return cartView{Cart: c, Total: c.Total()}
}
