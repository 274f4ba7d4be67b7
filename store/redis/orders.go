package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/warp/resale-engine/commerce"
)

// OrderCache keeps cached orders in one hash per customer email.
type OrderCache struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

var _ commerce.OrderCache = (*OrderCache)(nil)

// removeOrder deletes one hash field and, in the same script, drops the email
// from the index when the hash is left empty. A Save racing with the removal
// either lands before (hash not empty, index kept) or after (index re-added).
//
// KEYS[1] orders hash, KEYS[2] email index; ARGV[1] ref, ARGV[2] email.
var removeOrder = goredis.NewScript(`
local removed = redis.call('HDEL', KEYS[1], ARGV[1])
if redis.call('HLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[2])
end
return removed
`)

func NewOrderCache(client *goredis.Client, logger *slog.Logger) *OrderCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderCache{client: client, prefix: DefaultPrefix, logger: logger}
}

func (c *OrderCache) ordersKey(email string) string {
	return key(c.prefix, "orders", normEmail(email))
}

func (c *OrderCache) emailsKey() string {
	return key(c.prefix, "orders", "emails")
}

// Save writes the order and indexes its email in one MULTI/EXEC.
func (c *OrderCache) Save(ctx context.Context, order commerce.CachedOrder) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	email := normEmail(order.CustomerEmail)
	_, err = c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, c.ordersKey(email), order.Ref(), raw)
		pipe.SAdd(ctx, c.emailsKey(), email)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache order: %w", err)
	}
	return nil
}

// ListByEmail returns the customer's orders, oldest first.
func (c *OrderCache) ListByEmail(ctx context.Context, email string) ([]commerce.CachedOrder, error) {
	fields, err := c.client.HGetAll(ctx, c.ordersKey(email)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached orders: %w", err)
	}

	orders := make([]commerce.CachedOrder, 0, len(fields))
	for ref, raw := range fields {
		var o commerce.CachedOrder
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			// One unreadable entry must not hide the customer's other orders.
			c.logger.WarnContext(ctx, "skipping undecodable cached order",
				"email", normEmail(email), "ref", ref, "error", err)
			continue
		}
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Date.Before(orders[j].Date)
	})
	return orders, nil
}

func (c *OrderCache) Emails(ctx context.Context) ([]string, error) {
	emails, err := c.client.SMembers(ctx, c.emailsKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(emails)
	return emails, nil
}

// Remove deletes one order and drops the email from the index once its hash
// is empty. Both steps run as one script.
func (c *OrderCache) Remove(ctx context.Context, email, ref string) error {
	email = normEmail(email)
	keys := []string{c.ordersKey(email), c.emailsKey()}
	if err := removeOrder.Run(ctx, c.client, keys, ref, email).Err(); err != nil {
		return fmt.Errorf("failed to remove cached order: %w", err)
	}
	return nil
}
