/*
store.go - Persistence interfaces for the commerce engine

PURPOSE:
  Defines the boundary between the engine's rules and the relational store.
  The OrderService only talks to these interfaces; store/sqlite implements
  them.

KEY INTERFACES:
  InventoryStore:   Furniture reads and the conditional stock update
  TransactionStore: Header and line item persistence
  CustomerStore:    Customer lookups
  Store:            All of the above
  TxStore:          Store + WithTx for atomic units of work

ATOMIC UNITS:
  WithTx hands fn a Store bound to a single database transaction. If fn
  returns an error the whole unit is rolled back, so no partial header,
  line item or stock change is ever observable.

SEE ALSO:
  - orders.go: Uses TxStore
  - store/sqlite: Concrete implementation
*/
package commerce

import "context"

// =============================================================================
// INVENTORY
// =============================================================================

// InventoryStore holds per-item stock.
type InventoryStore interface {
	// GetFurniture returns the item or ErrFurnitureNotFound.
	GetFurniture(ctx context.Context, id FurnitureID) (*FurnitureItem, error)

	// AdjustStock applies delta in a single conditional update and returns the
	// new quantity. A negative delta that would drive quantity below zero
	// returns *InsufficientStockError and changes nothing.
	AdjustStock(ctx context.Context, id FurnitureID, delta int) (int, error)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionStore holds transaction headers and line items.
type TransactionStore interface {
	// InsertTransaction writes the header and sets tx.ID. Items are ignored.
	InsertTransaction(ctx context.Context, tx *Transaction) error

	// InsertLineItem writes one line item and sets item.ID.
	InsertLineItem(ctx context.Context, item *LineItem) error

	// UpdateTransactionHeader rewrites status, total, payment, address, notes.
	UpdateTransactionHeader(ctx context.Context, tx *Transaction) error

	// DeleteLineItems removes every line item of a transaction.
	DeleteLineItems(ctx context.Context, id TransactionID) error

	// DeleteTransactionHeader removes the header row.
	DeleteTransactionHeader(ctx context.Context, id TransactionID) error

	// GetTransaction returns the header plus items or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// GetTransactionByIdempotencyKey returns ErrTransactionNotFound if absent.
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)

	// ListTransactionsByCustomer returns newest first.
	ListTransactionsByCustomer(ctx context.Context, id CustomerID) ([]Transaction, error)

	// ListTransactions returns every transaction joined with customer
	// identity, newest first.
	ListTransactions(ctx context.Context) ([]Transaction, error)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerStore resolves customers.
type CustomerStore interface {
	GetCustomer(ctx context.Context, id CustomerID) (*Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)
}

// =============================================================================
// COMPOSITES
// =============================================================================

// Store is everything the engine reads and writes.
type Store interface {
	InventoryStore
	TransactionStore
	CustomerStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
