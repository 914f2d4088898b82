// Package regions serves the wilaya catalog: code, names and home-delivery cost.
package regions

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

var codePattern = regexp.MustCompile(`^[0-9]{2}$`)

var (
	// ErrInvalidCode indicates a code that is not two digits.
	ErrInvalidCode = errors.New("regions: invalid code")
	// ErrNotFound indicates no region carries the code.
	ErrNotFound = errors.New("regions: not found")
)

// Region is one wilaya.
type Region struct {
	Code         string       `dynamodbav:"code" json:"code"`
	Name         string       `dynamodbav:"name" json:"name"`
	NameArabic   string       `dynamodbav:"name_ar" json:"name_ar"`
	ShippingCost money.Amount `dynamodbav:"shipping_cost" json:"shipping_cost"`
	Active       bool         `dynamodbav:"active" json:"active"`
}

// ValidCode reports whether code has the seeded two-digit shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

type source interface {
	All(ctx context.Context) ([]Region, error)
}

// Catalog is a read-through cache over the regions table.
type Catalog struct {
	src source
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sorted   []Region
	byCode   map[string]Region
	loadedAt time.Time
}

// NewCatalog caches src for ttl. A zero ttl re-reads on every call.
func NewCatalog(src source, ttl time.Duration) *Catalog {
	return &Catalog{src: src, ttl: ttl, now: time.Now}
}

// ListActive returns active regions ordered by code.
func (c *Catalog) ListActive(ctx context.Context) ([]Region, error) {
	all, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Region, 0, len(all))
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetByCode returns the region for an exact two-digit code, active or not.
func (c *Catalog) GetByCode(ctx context.Context, code string) (Region, error) {
	if !ValidCode(code) {
		return Region{}, &apperr.Error{
			Kind:    apperr.KindValidation,
			Message: "region code must be two digits",
			Fields:  map[string]string{"code": "must match the two-digit wilaya code"},
			Err:     ErrInvalidCode,
		}
	}
	_, byCode, err := c.snapshot(ctx)
	if err != nil {
		return Region{}, err
	}
	r, ok := byCode[code]
	if !ok {
		return Region{}, &apperr.Error{Kind: apperr.KindNotFound, Message: "region " + code + " not found", Err: ErrNotFound}
	}
	return r, nil
}

// Invalidate drops the cache.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sorted, c.byCode, c.loadedAt = nil, nil, time.Time{}
}

func (c *Catalog) snapshot(ctx context.Context) ([]Region, map[string]Region, error) {
	c.mu.RLock()
	if c.byCode != nil && c.now().Sub(c.loadedAt) < c.ttl {
		sorted, byCode := c.sorted, c.byCode
		c.mu.RUnlock()
		return sorted, byCode, nil
	}
	c.mu.RUnlock()

	all, err := c.src.All(ctx)
	if err != nil {
		return nil, nil, apperr.Infrastructure("load regions", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	byCode := make(map[string]Region, len(all))
	for _, r := range all {
		byCode[r.Code] = r
	}

	c.mu.Lock()
	c.sorted, c.byCode, c.loadedAt = all, byCode, c.now()
	c.mu.Unlock()
	return all, byCode, nil
}
