/*
Package redis provides Redis-backed implementations of the client-resident
stores: per-device carts and the cached order log.

KEY LAYOUT:
  {prefix}:cart:{device}:{identity}   JSON cart.Cart, optional TTL
  {prefix}:orders:{email}             hash, field = CachedOrder.Ref(), value = JSON
  {prefix}:orders:emails              set of emails with cached orders

DEVICE SCOPE:
  A device plays the role of a browser profile: guest and customer carts on
  one device are separate slots, and the guest slot is shared by every
  anonymous session on that device.

SEE ALSO:
  - cart/cart.go: Repository interface
  - commerce/cache.go: OrderCache interface
*/
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "resale"

// Open connects to addr and verifies the connection.
func Open(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func key(parts ...string) string {
	return strings.Join(parts, ":")
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
