/*
cache.go - Client-resident order cache

PURPOSE:
  A checkout writes a CachedOrder before it calls the store. If the store
  write never happens (offline, crash) the cached copy survives and the
  reconciliation matcher later migrates it into the transaction store.

IDENTITY:
  New cached orders carry the same client-generated Key that is sent as the
  transaction's IdempotencyKey. Older cached data has no key; such orders are
  identified by date and total (see CachedOrder.Ref).

SEE ALSO:
  - cart/checkout.go: Writes cached orders
  - reconcile/matcher.go: Reads and prunes them
  - commerce/store, store/redis: Implementations
*/
package commerce

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CachedItem is one line of a cached order.
type CachedItem struct {
	FurnitureID FurnitureID     `json:"furnitureId"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// CachedOrder is the client-side copy of a checkout.
type CachedOrder struct {
	Key             string          `json:"key,omitempty"`
	CustomerEmail   string          `json:"customerEmail"`
	Items           []CachedItem    `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Date            time.Time       `json:"date"`
	ShippingAddress string          `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
}

// Ref identifies a cached order within its customer's cache.
func (o CachedOrder) Ref() string {
	if o.Key != "" {
		return o.Key
	}
	return fmt.Sprintf("legacy:%d:%s", o.Date.UnixNano(), o.Total.StringFixed(2))
}

// OrderCache stores cached orders per customer email.
type OrderCache interface {
	// Save appends an order to the customer's cache.
	Save(ctx context.Context, order CachedOrder) error

	// ListByEmail returns the customer's cached orders, oldest first.
	ListByEmail(ctx context.Context, email string) ([]CachedOrder, error)

	// Emails returns every email with at least one cached order.
	Emails(ctx context.Context) ([]string, error)

	// Remove drops the order with the given Ref. Missing refs are ignored.
	Remove(ctx context.Context, email, ref string) error
}
