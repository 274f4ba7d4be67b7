/*
Package cart provides the Cart Aggregator.

PURPOSE:
  Keeps a per-identity shopping cart (guest or logged-in customer) in a
  client-resident repository, enforces stock limits against the item
  snapshot captured when the item was added, and merges the guest cart into
  the customer cart on login.

KEY CONCEPTS:
  - Identity: "guest" or "customer:<id>"; one cart per identity
  - ItemSnapshot: the furniture data the cart saw (price, stock) when adding
  - Repository: where carts live (memory for tests, redis per device)

STOCK CHECKS:
  Cart checks run against the snapshot only. They are advisory; the store's
  ledger is the authority at checkout (see checkout.go).

SEE ALSO:
  - aggregator.go: Cart operations
  - checkout.go: Cart to transaction
  - store/redis/cart.go: Device-scoped repository
*/
package cart

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/resale-engine/commerce"
)

// Identity selects which cart an operation works on.
type Identity string

// Guest is the identity of a visitor who is not logged in.
const Guest Identity = "guest"

const customerPrefix = "customer:"

// CustomerIdentity returns the identity of a logged-in customer.
func CustomerIdentity(id commerce.CustomerID) Identity {
	return Identity(fmt.Sprintf("%s%d", customerPrefix, id))
}

// CustomerID returns the customer behind the identity, if any.
func (i Identity) CustomerID() (commerce.CustomerID, bool) {
	rest, ok := strings.CutPrefix(string(i), customerPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return commerce.CustomerID(id), true
}

// IsGuest reports whether i is the guest identity.
func (i Identity) IsGuest() bool {
	return i == Guest
}

// ItemSnapshot is the cart's copy of a furniture item. Quantity is the stock
// level seen when the item was added.
type ItemSnapshot struct {
	ID       commerce.FurnitureID `json:"id"`
	Name     string               `json:"name"`
	Price    decimal.Decimal      `json:"price"`
	Quantity int                  `json:"quantity"`
}

// SnapshotOf captures a furniture item for the cart.
func SnapshotOf(item commerce.FurnitureItem) ItemSnapshot {
	return ItemSnapshot{ID: item.ID, Name: item.Name, Price: item.Price, Quantity: item.Quantity}
}

// Entry is one cart line.
type Entry struct {
	Item     ItemSnapshot `json:"item"`
	Quantity int          `json:"quantity"`
}

// Subtotal returns price × quantity.
func (e Entry) Subtotal() decimal.Decimal {
	return e.Item.Price.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// Cart is an ordered list of entries, at most one per item.
type Cart struct {
	Entries []Entry `json:"entries"`
}

func (c Cart) find(id commerce.FurnitureID) int {
	for i, e := range c.Entries {
		if e.Item.ID == id {
			return i
		}
	}
	return -1
}

func (c Cart) clone() Cart {
	out := Cart{Entries: make([]Entry, len(c.Entries))}
	copy(out.Entries, c.Entries)
	return out
}

// TotalItems sums entry quantities.
func (c Cart) TotalItems() int {
	n := 0
	for _, e := range c.Entries {
		n += e.Quantity
	}
	return n
}

// TotalPrice sums entry subtotals, before tax.
func (c Cart) TotalPrice() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range c.Entries {
		sum = sum.Add(e.Subtotal())
	}
	return sum
}

// Repository stores carts by identity.
type Repository interface {
	// Get returns the stored cart, or an empty cart if none exists.
	Get(ctx context.Context, identity Identity) (Cart, error)
	Put(ctx context.Context, identity Identity, cart Cart) error
	Delete(ctx context.Context, identity Identity) error
}
