/*
ledger.go - Inventory Ledger

PURPOSE:
  The Ledger is the only component allowed to change FurnitureItem.Quantity.
  Every change is a named, attributable operation (decrement on checkout,
  increment on cancel/refund/delete, and so on) so that any stock level can
  be explained by the transaction events that produced it.

CRITICAL INVARIANTS:
  1. ATTRIBUTABLE: every mutation carries a Reason and is logged
  2. NON-NEGATIVE: a decrement never drives quantity below zero; the check
     lives in the same UPDATE statement as the write (no read-then-write)
  3. NO RETRIES: a failed update surfaces to the caller as-is

SCOPE:
  A Ledger is bound to an InventoryStore. Bind it to the Store handed out by
  TxStore.WithTx to make ledger operations part of a larger unit of work.

SEE ALSO:
  - store.go: InventoryStore.AdjustStock
  - orders.go: Uses the ledger inside units of work
*/
package commerce

import (
	"context"
	"fmt"
	"log/slog"
)

// Reason attributes a stock movement to the event that caused it.
type Reason string

const (
	ReasonCheckout   Reason = "checkout"
	ReasonCancel     Reason = "cancel"
	ReasonRefund     Reason = "refund"
	ReasonReactivate Reason = "reactivate"
	ReasonDelete     Reason = "delete"
	ReasonCorrection Reason = "correction"
	ReasonReceive    Reason = "receive"
)

// Ledger performs stock mutations.
type Ledger struct {
	store  InventoryStore
	logger *slog.Logger
}

// NewLedger binds a ledger to an inventory store.
func NewLedger(store InventoryStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// Decrement removes qty units of an item from stock.
func (l *Ledger) Decrement(ctx context.Context, id FurnitureID, qty int, reason Reason) (int, error) {
	if qty <= 0 {
		return 0, NewValidationError("decrement quantity must be positive, got %d", qty)
	}
	return l.apply(ctx, id, -qty, reason)
}

// Increment returns qty units of an item to stock.
func (l *Ledger) Increment(ctx context.Context, id FurnitureID, qty int, reason Reason) (int, error) {
	if qty <= 0 {
		return 0, NewValidationError("increment quantity must be positive, got %d", qty)
	}
	return l.apply(ctx, id, qty, reason)
}

// Adjust applies a signed delta; zero is a no-op.
func (l *Ledger) Adjust(ctx context.Context, id FurnitureID, delta int, reason Reason) (int, error) {
	switch {
	case delta > 0:
		return l.Increment(ctx, id, delta, reason)
	case delta < 0:
		return l.Decrement(ctx, id, -delta, reason)
	}
	item, err := l.store.GetFurniture(ctx, id)
	if err != nil {
		return 0, err
	}
	return item.Quantity, nil
}

func (l *Ledger) apply(ctx context.Context, id FurnitureID, delta int, reason Reason) (int, error) {
	qty, err := l.store.AdjustStock(ctx, id, delta)
	if err != nil {
		l.logger.WarnContext(ctx, "ledger operation failed",
			"furniture_id", id, "delta", delta, "reason", reason, "error", err)
		return 0, fmt.Errorf("adjusting stock of item %d by %d: %w", id, delta, err)
	}
	l.logger.DebugContext(ctx, "ledger operation",
		"furniture_id", id, "delta", delta, "reason", reason, "quantity", qty)
	return qty, nil
}
