package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/warp/resale-engine/cart"
)

// CartRepository stores the carts of one device.
type CartRepository struct {
	client *goredis.Client
	prefix string
	device string
	ttl    time.Duration
}

var _ cart.Repository = (*CartRepository)(nil)

// NewCartRepository scopes carts to device. A zero ttl keeps carts forever.
func NewCartRepository(client *goredis.Client, device string, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, prefix: DefaultPrefix, device: device, ttl: ttl}
}

func (r *CartRepository) key(identity cart.Identity) string {
	return key(r.prefix, "cart", r.device, string(identity))
}

func (r *CartRepository) Get(ctx context.Context, identity cart.Identity) (cart.Cart, error) {
	raw, err := r.client.Get(ctx, r.key(identity)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return cart.Cart{}, nil
	}
	if err != nil {
		return cart.Cart{}, fmt.Errorf("failed to load cart: %w", err)
	}

	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return cart.Cart{}, fmt.Errorf("failed to decode cart: %w", err)
	}
	return c, nil
}

func (r *CartRepository) Put(ctx context.Context, identity cart.Identity, c cart.Cart) error {
	if len(c.Entries) == 0 {
		return r.Delete(ctx, identity)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(identity), raw, r.ttl).Err()
}

func (r *CartRepository) Delete(ctx context.Context, identity cart.Identity) error {
	return r.client.Del(ctx, r.key(identity)).Err()
}
