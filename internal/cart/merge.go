package cart

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
)

// MergeSource is what gets folded into a customer cart on login: either a
// guest session kept server-side or a snapshot the client held locally.
// SnapshotID names the client snapshot, e.g. its local cart id and revision;
// without it the snapshot is identified by its content.
type MergeSource struct {
	GuestSession string
	SnapshotID   string
	Items        []Item
}

// MergeResult is the customer cart after the merge.
type MergeResult struct {
	Cart    Cart `json:"cart"`
	Applied bool `json:"applied"`
}

// Merge folds source into the customer's cart. Matching products are summed
// and capped at current stock; lines whose product is gone or out of stock
// are dropped. Price, name and image come from the live product when a
// lookup is wired. The merge token is written with the cart, so replaying
// the same source is a no-op until the cart is cleared. A guest session cart
// is cleared afterwards.
func (s *Service) Merge(ctx context.Context, source MergeSource, customer Owner) (MergeResult, error) {
	if customer.Kind != OwnerCustomer {
		return MergeResult{}, apperr.InvalidField("owner", "merge target must be a customer cart")
	}
	if _, err := s.store(customer); err != nil {
		return MergeResult{}, err
	}

	items, token, err := s.mergeInput(ctx, source)
	if err != nil {
		return MergeResult{}, err
	}
	if token == "" {
		c, err := s.Get(ctx, customer)
		return MergeResult{Cart: c}, err
	}

	items, caps, err := s.refresh(ctx, items)
	if err != nil {
		return MergeResult{}, err
	}

	applied := false
	c, err := s.mutate(ctx, customer, "merge cart", func(c *Cart) error {
		applied = false
		if c.merged(token) {
			return nil
		}
		for _, it := range items {
			limit, capped := caps[it.ProductID]
			if capped && limit <= 0 {
				continue
			}
			if i := c.index(it.ProductID); i >= 0 && s.products == nil {
				it.UnitPrice = c.Items[i].UnitPrice
			}
			c.add(it, s.maxQty)
			if capped && c.Quantity(it.ProductID) > limit {
				c.setQuantity(it.ProductID, limit, s.maxQty)
			}
		}
		c.recordMerge(token)
		applied = true
		return nil
	})
	if err != nil {
		return MergeResult{}, err
	}

	if source.GuestSession != "" {
		if err := s.Clear(ctx, Guest(source.GuestSession)); err != nil {
			logging.FromContext(ctx, s.logger).Warn("clear merged guest cart failed",
				zap.String("guest_session", source.GuestSession), zap.Error(err))
		}
	}
	return MergeResult{Cart: c, Applied: applied}, nil
}

// mergeInput returns the lines to merge and the token identifying them. An
// empty token means there is nothing to merge.
func (s *Service) mergeInput(ctx context.Context, source MergeSource) ([]Item, string, error) {
	if source.GuestSession != "" {
		guest, err := s.Get(ctx, Guest(source.GuestSession))
		if err != nil {
			return nil, "", err
		}
		if len(guest.Items) == 0 {
			return nil, "", nil
		}
		return guest.Items, fmt.Sprintf("guest:%s:%d", guest.CartID, guest.Version), nil
	}

	var folded Cart
	for _, it := range source.Items {
		if err := validateItem(it); err != nil {
			return nil, "", err
		}
		folded.add(it, 0)
	}
	if len(folded.Items) == 0 {
		return nil, "", nil
	}
	if id := strings.TrimSpace(source.SnapshotID); id != "" {
		return folded.Items, "client:" + id, nil
	}
	return folded.Items, snapshotToken(folded.Items), nil
}

// refresh rewrites lines from the live catalogue and maps product ids to
// current stock. Products that can no longer be sold map to 0. Without a
// lookup the lines are returned as given and nothing is capped.
func (s *Service) refresh(ctx context.Context, items []Item) ([]Item, map[string]int, error) {
	caps := map[string]int{}
	if s.products == nil {
		return items, caps, nil
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		p, err := s.products.Lookup(ctx, it.ProductID)
		switch {
		case apperr.Is(err, apperr.KindProductUnavailable):
			caps[it.ProductID] = 0
		case err != nil:
			return nil, nil, err
		default:
			caps[it.ProductID] = p.Stock
			it.UnitPrice = p.Price
			it.Name = p.Name
			it.ImageRef = p.ImageRef
		}
		out = append(out, it)
	}
	return out, caps, nil
}

// snapshotToken hashes the normalized lines so the same client snapshot
// always yields the same token.
func snapshotToken(items []Item) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.ProductID+"="+strconv.Itoa(it.Quantity))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return "snapshot:" + hex.EncodeToString(sum[:])
}
