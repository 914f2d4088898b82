package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const maxRetries = 5

// GuestStore keeps anonymous carts in Redis under <prefix>:guest:<session>.
// Every write refreshes the TTL so an active session keeps its cart.
type GuestStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewGuestStore creates a Redis-backed guest cart store.
func NewGuestStore(client *redis.Client, prefix string, ttl time.Duration) *GuestStore {
	return &GuestStore{client: client, prefix: prefix, ttl: ttl, nowFunc: time.Now}
}

func (s *GuestStore) key(owner Owner) string {
	return fmt.Sprintf("%s:guest:%s", s.prefix, owner.ID)
}

// Load returns the session cart, or an empty one when none exists.
func (s *GuestStore) Load(ctx context.Context, owner Owner) (Cart, error) {
	return s.read(ctx, s.client, s.key(owner))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *GuestStore) read(ctx context.Context, g getter, key string) (Cart, error) {
	data, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, nil
	}
	if err != nil {
		return Cart{}, fmt.Errorf("get guest cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("unmarshal guest cart: %w", err)
	}
	return c, nil
}

// Mutate applies fn under WATCH so a concurrent writer forces a retry.
func (s *GuestStore) Mutate(ctx context.Context, owner Owner, fn func(*Cart) error) (Cart, error) {
	key := s.key(owner)
	var result Cart
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			c, err := s.read(ctx, tx, key)
			if err != nil {
				return err
			}
			if c.CartID == "" {
				c.CartID = uuid.NewString()
			}
			if err := fn(&c); err != nil {
				return err
			}
			c.Version++
			c.UpdatedAt = s.nowFunc().UTC()
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("marshal guest cart: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			if err == nil {
				result = c
			}
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return Cart{}, ErrConflict
}

// Clear drops the session cart; the next write starts a new cart id.
func (s *GuestStore) Clear(ctx context.Context, owner Owner) error {
	if err := s.client.Del(ctx, s.key(owner)).Err(); err != nil {
		return fmt.Errorf("delete guest cart: %w", err)
	}
	return nil
}
