package cart

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/inventory"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

// ProductLookup resolves a sellable product for price snapshots and merge caps.
type ProductLookup interface {
	Lookup(ctx context.Context, productID string) (inventory.Product, error)
}

// Deps wires a Service. Products is optional; without it client prices are
// kept as sent and merges are not capped.
type Deps struct {
	Guests          Store
	Customers       Store
	Products        ProductLookup
	MaxLineQuantity int
	Logger          *zap.Logger
}

// Service implements cart operations over the store chosen by owner kind.
type Service struct {
	guests    Store
	customers Store
	products  ProductLookup
	maxQty    int
	logger    *zap.Logger
}

// NewService creates a cart Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		guests:    deps.Guests,
		customers: deps.Customers,
		products:  deps.Products,
		maxQty:    deps.MaxLineQuantity,
		logger:    logger,
	}
}

func (s *Service) store(owner Owner) (Store, error) {
	if strings.TrimSpace(owner.ID) == "" {
		if owner.Kind == OwnerCustomer {
			return nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
		}
		return nil, apperr.InvalidField("session", "guest session id is required")
	}
	switch owner.Kind {
	case OwnerGuest:
		return s.guests, nil
	case OwnerCustomer:
		return s.customers, nil
	}
	return nil, apperr.InvalidField("owner", "unknown cart owner kind")
}

// Get loads the owner's cart.
func (s *Service) Get(ctx context.Context, owner Owner) (Cart, error) {
	st, err := s.store(owner)
	if err != nil {
		return Cart{}, err
	}
	c, err := st.Load(ctx, owner)
	return c, classify("load cart", err)
}

// Total is the derived cart total.
func (s *Service) Total(ctx context.Context, owner Owner) (money.Amount, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return money.Zero, err
	}
	return c.Total(), nil
}

// AddItem increments an existing line or appends a new one.
func (s *Service) AddItem(ctx context.Context, owner Owner, item Item) (Cart, error) {
	if err := validateItem(item); err != nil {
		return Cart{}, err
	}
	item, err := s.snapshot(ctx, item)
	if err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, owner, "add cart item", func(c *Cart) error {
		c.add(item, s.maxQty)
		return nil
	})
}

// UpdateQuantity sets a line's quantity; qty <= 0 removes the line. Stock is
// checked at checkout, not here.
func (s *Service) UpdateQuantity(ctx context.Context, owner Owner, productID string, qty int) (Cart, error) {
	return s.mutate(ctx, owner, "update cart item", func(c *Cart) error {
		if !c.setQuantity(productID, qty, s.maxQty) {
			return apperr.NotFound("cart item", productID)
		}
		return nil
	})
}

// RemoveItem drops a line. Removing an absent product is a no-op.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, productID string) (Cart, error) {
	return s.mutate(ctx, owner, "remove cart item", func(c *Cart) error {
		c.remove(productID)
		return nil
	})
}

// Replace swaps all lines at once. Duplicate products are summed.
func (s *Service) Replace(ctx context.Context, owner Owner, items []Item) (Cart, error) {
	next := Cart{}
	for _, it := range items {
		if err := validateItem(it); err != nil {
			return Cart{}, err
		}
		it, err := s.snapshot(ctx, it)
		if err != nil {
			return Cart{}, err
		}
		next.add(it, s.maxQty)
	}
	return s.mutate(ctx, owner, "replace cart", func(c *Cart) error {
		c.Items = next.Items
		return nil
	})
}

// Clear empties the owner's cart.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	st, err := s.store(owner)
	if err != nil {
		return err
	}
	return classify("clear cart", st.Clear(ctx, owner))
}

func (s *Service) mutate(ctx context.Context, owner Owner, op string, fn func(*Cart) error) (Cart, error) {
	st, err := s.store(owner)
	if err != nil {
		return Cart{}, err
	}
	c, err := st.Mutate(ctx, owner, fn)
	return c, classify(op, err)
}

// snapshot takes price, name and image from the live product when a lookup
// is wired.
func (s *Service) snapshot(ctx context.Context, item Item) (Item, error) {
	if s.products == nil {
		return item, nil
	}
	p, err := s.products.Lookup(ctx, item.ProductID)
	if err != nil {
		return Item{}, err
	}
	item.UnitPrice = p.Price
	item.Name = p.Name
	item.ImageRef = p.ImageRef
	return item, nil
}

func validateItem(item Item) error {
	fields := map[string]string{}
	if strings.TrimSpace(item.ProductID) == "" {
		fields["product_id"] = "is required"
	}
	if item.Quantity < 1 {
		fields["quantity"] = "must be at least 1"
	}
	if item.UnitPrice.IsNegative() {
		fields["unit_price"] = "must not be negative"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict):
		return &apperr.Error{Kind: apperr.KindConflict, Message: "cart was modified concurrently, retry", Err: err}
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Infrastructure(op, err)
}
