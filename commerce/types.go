/*
Package commerce provides the order/inventory consistency engine.

PURPOSE:
  This package owns the rules that keep stock and sales records consistent:
  converting a checkout into a durable transaction while adjusting stock,
  driving an order through its status lifecycle with compensating stock
  movements, and deleting orders without losing inventory.

KEY CONCEPTS IN THIS FILE (types.go):
  - FurnitureItem: a sellable item with a stock quantity
  - Transaction: an order header, status-mutable after creation
  - LineItem: one (item, quantity, price snapshot) row of a transaction
  - Status / PaymentMethod / Condition: fixed label sets persisted verbatim

DESIGN PRINCIPLES:
  1. Precision: money uses decimal.Decimal, never float64
  2. Attribution: stock only changes through the Ledger (ledger.go)
  3. Snapshots: LineItem.PriceEach is frozen at sale time

SEE ALSO:
  - ledger.go: Inventory Ledger (decrement/increment)
  - orders.go: Transaction Store operations
  - lifecycle.go: Order Lifecycle Machine
  - store.go: Persistence interfaces
*/
package commerce

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxRate is the fixed sales tax applied on top of the line item subtotal.
var TaxRate = decimal.NewFromFloat(0.04)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	FurnitureID   int64
	CustomerID    int64
	TransactionID int64
)

// =============================================================================
// FURNITURE
// =============================================================================

// Condition describes the physical state of a resale item.
type Condition string

const (
	ConditionNew     Condition = "New"
	ConditionLikeNew Condition = "Like New"
	ConditionGood    Condition = "Good"
	ConditionFair    Condition = "Fair"
	ConditionPoor    Condition = "Poor"
)

// Valid reports whether c is one of the known condition labels.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// FurnitureItem is a sellable item. Quantity is owned by the Ledger.
type FurnitureItem struct {
	ID        FurnitureID
	Name      string
	Category  string
	Price     decimal.Decimal
	Condition Condition
	Quantity  int
	IsForSale bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CUSTOMER
// =============================================================================

// Customer is the minimal customer record the engine needs: existence checks
// on checkout and email resolution during reconciliation.
type Customer struct {
	ID        CustomerID
	Name      string
	Email     string
	CreatedAt time.Time
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Source records how a transaction entered the store.
type Source string

const (
	SourceCheckout  Source = "checkout"
	SourceMigration Source = "migration"
)

// Transaction is an order header plus its line items.
type Transaction struct {
	ID              TransactionID
	CustomerID      CustomerID
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TotalAmount     decimal.Decimal
	PaymentMethod   PaymentMethod
	Status          Status
	ShippingAddress string
	Notes           string
	IdempotencyKey  string
	Source          Source
	Items           []LineItem

	// Joined fields (staff view only).
	CustomerName  string
	CustomerEmail string
}

// LineItem is one row of a transaction. PriceEach is a snapshot of the item
// price at sale time and is intentionally decoupled from FurnitureItem.Price.
type LineItem struct {
	ID            int64
	TransactionID TransactionID
	FurnitureID   FurnitureID
	Quantity      int
	PriceEach     decimal.Decimal

	// Joined field, not always populated.
	FurnitureName string
}

// Subtotal returns quantity × price_each.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.PriceEach.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ItemCount returns the sum of line item quantities.
func (t *Transaction) ItemCount() int {
	n := 0
	for _, li := range t.Items {
		n += li.Quantity
	}
	return n
}

// Subtotal returns the sum of line item subtotals, before tax.
func (t *Transaction) Subtotal() decimal.Decimal {
	return SubtotalOf(t.Items)
}

// SubtotalOf sums quantity × price_each over items.
func SubtotalOf(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(li.Subtotal())
	}
	return sum
}

// WithTax returns subtotal plus TaxRate, rounded to cents.
func WithTax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Add(subtotal.Mul(TaxRate)).Round(2)
}

// quantitiesByFurniture folds line items into per-item quantities.
func quantitiesByFurniture(items []LineItem) map[FurnitureID]int {
	out := make(map[FurnitureID]int, len(items))
	for _, li := range items {
		out[li.FurnitureID] += li.Quantity
	}
	return out
}

// =============================================================================
// STATS
// =============================================================================

// Stats is a simple aggregate over the transaction store.
type Stats struct {
	TotalTransactions int
	ByStatus          map[Status]int
	Revenue           decimal.Decimal
}
