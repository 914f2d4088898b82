// Package cart keeps shopping carts for guest sessions and signed-in
// customers behind one Store interface.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

// OwnerKind selects the backing store.
type OwnerKind string

const (
	OwnerGuest    OwnerKind = "guest"
	OwnerCustomer OwnerKind = "customer"
)

// Owner identifies a cart: a guest session id or a customer id.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// Guest returns the owner for an anonymous session.
func Guest(sessionID string) Owner { return Owner{Kind: OwnerGuest, ID: sessionID} }

// Customer returns the owner for an authenticated customer.
func Customer(customerID string) Owner { return Owner{Kind: OwnerCustomer, ID: customerID} }

// Key is the storage key, e.g. "customer#42".
func (o Owner) Key() string { return string(o.Kind) + "#" + o.ID }

// ErrConflict is returned when an atomic read-modify-write kept losing races.
var ErrConflict = errors.New("cart modified concurrently")

// maxMergedSnapshots bounds the merge tokens kept on a customer cart.
const maxMergedSnapshots = 20

// Store persists carts for one owner kind. Mutate is an atomic
// read-modify-write: when fn returns an error nothing is written.
type Store interface {
	Load(ctx context.Context, owner Owner) (Cart, error)
	Mutate(ctx context.Context, owner Owner, fn func(*Cart) error) (Cart, error)
	Clear(ctx context.Context, owner Owner) error
}

// Item is one cart line. UnitPrice is the price seen when the line was added.
type Item struct {
	ProductID string       `dynamodbav:"product_id" json:"product_id"`
	Quantity  int          `dynamodbav:"quantity" json:"quantity"`
	UnitPrice money.Amount `dynamodbav:"unit_price" json:"unit_price"`
	Name      string       `dynamodbav:"name,omitempty" json:"name,omitempty"`
	ImageRef  string       `dynamodbav:"image_ref,omitempty" json:"image_ref,omitempty"`
}

// LineTotal is quantity times unit price.
func (i Item) LineTotal() money.Amount {
	return i.UnitPrice.Times(i.Quantity)
}

// Cart is an ordered list of lines with at most one line per product.
type Cart struct {
	OwnerKey        string    `dynamodbav:"owner_key" json:"-"`
	CartID          string    `dynamodbav:"cart_id" json:"cart_id"`
	Items           []Item    `dynamodbav:"items" json:"items"`
	Version         int64     `dynamodbav:"version" json:"version"`
	MergedSnapshots []string  `dynamodbav:"merged_snapshots,omitempty" json:"merged_snapshots,omitempty"`
	UpdatedAt       time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Total is derived from the lines on every call.
func (c Cart) Total() money.Amount {
	total := money.Zero
	for _, it := range c.Items {
		total = total.Plus(it.LineTotal())
	}
	return total
}

// Quantity returns the quantity held for productID, 0 when absent.
func (c Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

func (c *Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// add increments an existing line or appends a new one, clamping to max.
func (c *Cart) add(item Item, max int) {
	if i := c.index(item.ProductID); i >= 0 {
		existing := &c.Items[i]
		existing.Quantity = clamp(existing.Quantity+item.Quantity, max)
		existing.UnitPrice = item.UnitPrice
		if item.Name != "" {
			existing.Name = item.Name
		}
		if item.ImageRef != "" {
			existing.ImageRef = item.ImageRef
		}
		return
	}
	item.Quantity = clamp(item.Quantity, max)
	c.Items = append(c.Items, item)
}

// setQuantity reports false when the product has no line.
func (c *Cart) setQuantity(productID string, qty, max int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	if qty <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	}
	c.Items[i].Quantity = clamp(qty, max)
	return true
}

func (c *Cart) remove(productID string) bool {
	return c.setQuantity(productID, 0, 0)
}

// reset empties the cart and gives it a new identity. Merge tokens belong to
// the old cart, so they go too.
func (c *Cart) reset() {
	c.Items = nil
	c.MergedSnapshots = nil
	c.CartID = uuid.NewString()
}

func (c Cart) merged(token string) bool {
	for _, t := range c.MergedSnapshots {
		if t == token {
			return true
		}
	}
	return false
}

func (c *Cart) recordMerge(token string) {
	c.MergedSnapshots = append(c.MergedSnapshots, token)
	if n := len(c.MergedSnapshots); n > maxMergedSnapshots {
		c.MergedSnapshots = append([]string(nil), c.MergedSnapshots[n-maxMergedSnapshots:]...)
	}
}

func clamp(qty, max int) int {
	if max > 0 && qty > max {
		return max
	}
	return qty
}
