/*
Package reconcile migrates orders that exist only in the client-resident
order cache into the transaction store, exactly once.

PURPOSE:
  A cached order carries no transaction id. Newer cached orders carry the
  idempotency key their checkout sent; those are paired by key. Older
  key-less orders are paired by Signature: the same sale recorded twice has
  the same total, the same (item, quantity) multiset and the same unit count.

SIGNATURE:
  Total   rounded to cents; totals within 0.01 match
  Items   sorted "furnitureID:qty" pairs joined by ","
  Count   sum of quantities
  The date is excluded; migration stamps the transaction with the cached
  order's date, and older rows may carry the server's own timestamp.

SEE ALSO:
  - matcher.go: Migration policy
  - commerce/cache.go: CachedOrder
*/
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/resale-engine/commerce"
)

var totalTolerance = decimal.New(1, -2)

// Signature is the comparable fingerprint of a sale.
type Signature struct {
	Total decimal.Decimal
	Items string
	Count int
}

type pair struct {
	id  commerce.FurnitureID
	qty int
}

func newSignature(total decimal.Decimal, pairs []pair) Signature {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].id != pairs[j].id {
			return pairs[i].id < pairs[j].id
		}
		return pairs[i].qty < pairs[j].qty
	})
	parts := make([]string, len(pairs))
	count := 0
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%d:%d", p.id, p.qty)
		count += p.qty
	}
	return Signature{Total: total.Round(2), Items: strings.Join(parts, ","), Count: count}
}

// OfOrder fingerprints a cached order.
func OfOrder(o commerce.CachedOrder) Signature {
	pairs := make([]pair, len(o.Items))
	for i, it := range o.Items {
		pairs[i] = pair{id: it.FurnitureID, qty: it.Quantity}
	}
	return newSignature(o.Total, pairs)
}

// OfTransaction fingerprints a stored transaction.
func OfTransaction(tx commerce.Transaction) Signature {
	pairs := make([]pair, len(tx.Items))
	for i, li := range tx.Items {
		pairs[i] = pair{id: li.FurnitureID, qty: li.Quantity}
	}
	return newSignature(tx.TotalAmount, pairs)
}

// Matches reports whether two signatures describe the same sale.
func (s Signature) Matches(other Signature) bool {
	return s.Total.Sub(other.Total).Abs().LessThan(totalTolerance) &&
		s.Items == other.Items &&
		s.Count == other.Count
}

func (s Signature) String() string {
	return fmt.Sprintf("%s|%s|%d", s.Total.StringFixed(2), s.Items, s.Count)
}

// Matches reports whether a cached order and a transaction are the same sale.
func Matches(order commerce.CachedOrder, tx commerce.Transaction) bool {
	return OfOrder(order).Matches(OfTransaction(tx))
}
