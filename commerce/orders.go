/*
orders.go - Transaction Store operations

PURPOSE:
  OrderService is the single entry point for creating, reading, updating and
  deleting transactions. It validates input, opens one unit of work per
  logical operation, and routes every stock change through the Ledger.

OPERATIONS:
  CreateTransaction          Checkout or migration; atomic header+items+stock
  GetTransaction             One transaction with its line items
  GetTransactionsByCustomer  Customer history, newest first
  GetAllTransactions         Staff view joined with customer identity
  UpdateTransaction          Status change, corrections, compensating stock
  DeleteTransaction          Restock then remove items and header
  ReceiveStock               Staff stock receipt (ledger increment)
  Stats                      Counts per status and revenue

ATOMICITY:
  Every write operation runs inside TxStore.WithTx. The status write, any
  line item correction and all resulting ledger movements commit or roll
  back together.

IDEMPOTENCY:
  A create that carries an IdempotencyKey already present in the store
  returns the existing transaction together with ErrDuplicateIdempotencyKey.

SEE ALSO:
  - lifecycle.go: Which stock movement a status change implies
  - ledger.go: Stock mutations
  - reconcile/matcher.go: Uses SkipInventoryUpdate for key-less legacy orders
*/
package commerce

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderService implements the transaction store operations.
type OrderService struct {
	store  TxStore
	logger *slog.Logger
	now    func() time.Time
}

// NewOrderService creates a service over a transactional store.
func NewOrderService(store TxStore, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// INPUT TYPES
// =============================================================================

// LineItemInput is one requested line of a checkout or correction.
type LineItemInput struct {
	FurnitureID FurnitureID
	Quantity    int
	Price       decimal.Decimal
}

// CreateTransactionInput is the request to record a sale.
type CreateTransactionInput struct {
	CustomerID      CustomerID
	Items           []LineItemInput
	TotalAmount     decimal.Decimal
	PaymentMethod   string
	ShippingAddress string
	Notes           string

	// SkipInventoryUpdate records the sale without touching stock. Only for
	// historical sales whose stock change already happened.
	SkipInventoryUpdate bool

	IdempotencyKey string
	CreatedAt      time.Time
	Source         Source
}

// UpdateTransactionInput changes status and optionally corrects the order.
// Nil fields are left unchanged.
type UpdateTransactionInput struct {
	Status          Status
	Notes           *string
	Items           []LineItemInput
	TotalAmount     *decimal.Decimal
	PaymentMethod   *string
	ShippingAddress *string
}

func validateItems(v *ValidationError, items []LineItemInput) {
	if len(items) == 0 {
		v.add("at least one line item is required")
	}
	for i, it := range items {
		if it.FurnitureID <= 0 {
			v.add("items[%d]: furniture id is required", i)
		}
		if it.Quantity <= 0 {
			v.add("items[%d]: quantity must be positive", i)
		}
		if it.Price.IsNegative() {
			v.add("items[%d]: price must not be negative", i)
		}
	}
}

func toLineItems(items []LineItemInput) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		out[i] = LineItem{FurnitureID: it.FurnitureID, Quantity: it.Quantity, PriceEach: it.Price}
	}
	return out
}

// =============================================================================
// CREATE
// =============================================================================

// CreateTransaction records a sale atomically.
func (s *OrderService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*Transaction, error) {
	v := &ValidationError{}
	if in.CustomerID <= 0 {
		v.add("customer id is required")
	}
	validateItems(v, in.Items)
	if !in.TotalAmount.IsPositive() {
		v.add("total amount must be positive")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetCustomer(ctx, in.CustomerID); err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, NewValidationError("customer %d does not exist", in.CustomerID)
		}
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		existing, err := s.store.GetTransactionByIdempotencyKey(ctx, key)
		if err == nil {
			return existing, ErrDuplicateIdempotencyKey
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	source := in.Source
	if source == "" {
		source = SourceCheckout
	}

	tx := &Transaction{
		CustomerID:      in.CustomerID,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
		TotalAmount:     in.TotalAmount,
		PaymentMethod:   NormalizePaymentMethod(in.PaymentMethod),
		Status:          StatusProcessing,
		ShippingAddress: in.ShippingAddress,
		Notes:           in.Notes,
		IdempotencyKey:  key,
		Source:          source,
		Items:           toLineItems(in.Items),
	}

	if expected := WithTax(tx.Subtotal()); expected.Sub(tx.TotalAmount).Abs().GreaterThanOrEqual(decimal.New(1, -2)) {
		s.logger.WarnContext(ctx, "transaction total does not match line items",
			"customer_id", in.CustomerID, "total", tx.TotalAmount.String(), "expected", expected.String())
	}

	err := s.store.WithTx(ctx, func(st Store) error {
		ledger := NewLedger(st, s.logger)
		if err := st.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		for i := range tx.Items {
			item := &tx.Items[i]
			item.TransactionID = tx.ID
			if _, err := st.GetFurniture(ctx, item.FurnitureID); err != nil {
				return err
			}
			if err := st.InsertLineItem(ctx, item); err != nil {
				return err
			}
			if in.SkipInventoryUpdate {
				continue
			}
			if _, err := ledger.Decrement(ctx, item.FurnitureID, item.Quantity, ReasonCheckout); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) && key != "" {
			existing, getErr := s.store.GetTransactionByIdempotencyKey(ctx, key)
			if getErr == nil {
				return existing, ErrDuplicateIdempotencyKey
			}
		}
		s.logger.ErrorContext(ctx, "transaction creation rolled back",
			"customer_id", in.CustomerID, "items", len(in.Items), "error", err)
		return nil, &CreateError{Cause: err}
	}

	transactionsCreated.WithLabelValues(string(source)).Inc()
	s.logger.InfoContext(ctx, "transaction created",
		"transaction_id", tx.ID, "customer_id", tx.CustomerID, "items", len(tx.Items),
		"total", tx.TotalAmount.String(), "skip_inventory", in.SkipInventoryUpdate)

	return s.store.GetTransaction(ctx, tx.ID)
}

// =============================================================================
// READ
// =============================================================================

// GetTransaction returns one transaction with its line items.
func (s *OrderService) GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// GetTransactionsByCustomer returns a customer's transactions, newest first.
func (s *OrderService) GetTransactionsByCustomer(ctx context.Context, id CustomerID) ([]Transaction, error) {
	if _, err := s.store.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactionsByCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

// GetAllTransactions returns every transaction for the staff view.
func (s *OrderService) GetAllTransactions(ctx context.Context) ([]Transaction, error) {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

// Stats counts transactions per status. Revenue sums orders that still hold
// stock (everything except Cancelled and Refunded).
func (s *OrderService) Stats(ctx context.Context) (Stats, error) {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByStatus: make(map[Status]int, len(AllStatuses)), Revenue: decimal.Zero}
	for _, st := range AllStatuses {
		stats.ByStatus[st] = 0
	}
	for _, tx := range txs {
		stats.TotalTransactions++
		stats.ByStatus[tx.Status]++
		if tx.Status.HoldsStock() {
			stats.Revenue = stats.Revenue.Add(tx.TotalAmount)
		}
	}
	return stats, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateTransaction applies a status change and optional corrections.
func (s *OrderService) UpdateTransaction(ctx context.Context, id TransactionID, in UpdateTransactionInput) (*Transaction, error) {
	v := &ValidationError{}
	if !in.Status.Valid() {
		v.add("invalid status %q", in.Status)
	}
	if in.Items != nil {
		validateItems(v, in.Items)
	}
	if in.TotalAmount != nil && !in.TotalAmount.IsPositive() {
		v.add("total amount must be positive")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	var (
		from     Status
		movement StockMovement
		moved    int
	)
	err := s.store.WithTx(ctx, func(st Store) error {
		current, err := st.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if !CanTransition(from, in.Status) {
			return NewValidationError("transition %s -> %s is not allowed", from, in.Status)
		}
		ledger := NewLedger(st, s.logger)

		items := current.Items
		if in.Items != nil {
			items = toLineItems(in.Items)
			for _, it := range items {
				if _, err := st.GetFurniture(ctx, it.FurnitureID); err != nil {
					return err
				}
			}
			if from.HoldsStock() {
				if err := moveCorrection(ctx, ledger, current.Items, items); err != nil {
					return err
				}
			}
			if err := st.DeleteLineItems(ctx, id); err != nil {
				return err
			}
			for i := range items {
				items[i].TransactionID = id
				if err := st.InsertLineItem(ctx, &items[i]); err != nil {
					return err
				}
			}
			current.TotalAmount = WithTax(SubtotalOf(items))
		}

		movement = MovementFor(from, in.Status)
		for _, it := range items {
			switch movement {
			case MovementRestock:
				reason := ReasonCancel
				if in.Status == StatusRefunded {
					reason = ReasonRefund
				}
				_, err = ledger.Increment(ctx, it.FurnitureID, it.Quantity, reason)
			case MovementRecommit:
				_, err = ledger.Decrement(ctx, it.FurnitureID, it.Quantity, ReasonReactivate)
			}
			if err != nil {
				return err
			}
			if movement != MovementNone {
				moved += it.Quantity
			}
		}

		current.Status = in.Status
		current.UpdatedAt = s.now()
		if in.TotalAmount != nil {
			current.TotalAmount = *in.TotalAmount
		}
		if in.Notes != nil {
			current.Notes = *in.Notes
		}
		if in.PaymentMethod != nil {
			current.PaymentMethod = NormalizePaymentMethod(*in.PaymentMethod)
		}
		if in.ShippingAddress != nil {
			current.ShippingAddress = *in.ShippingAddress
		}
		return st.UpdateTransactionHeader(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	statusTransitions.WithLabelValues(string(from), string(in.Status)).Inc()
	if moved > 0 {
		stockMovedUnits.WithLabelValues(movement.String()).Add(float64(moved))
	}
	s.logger.InfoContext(ctx, "transaction updated",
		"transaction_id", id, "from", from, "to", in.Status, "movement", movement.String(), "units", moved)

	return s.store.GetTransaction(ctx, id)
}

// moveCorrection moves the per-item quantity difference between the old and
// corrected line items through the ledger. Items are visited in id order.
func moveCorrection(ctx context.Context, ledger *Ledger, before, after []LineItem) error {
	oldQty := quantitiesByFurniture(before)
	newQty := quantitiesByFurniture(after)

	ids := make([]FurnitureID, 0, len(oldQty)+len(newQty))
	seen := make(map[FurnitureID]bool)
	for _, m := range []map[FurnitureID]int{oldQty, newQty} {
		for id := range m {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		// more sold now means less in stock
		if diff := oldQty[id] - newQty[id]; diff != 0 {
			if _, err := ledger.Adjust(ctx, id, diff, ReasonCorrection); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteTransaction restocks every line item, then removes the items and the
// header. An order already Cancelled/Refunded was restocked when it became
// terminal and is not restocked again.
func (s *OrderService) DeleteTransaction(ctx context.Context, id TransactionID) error {
	restocked := 0
	err := s.store.WithTx(ctx, func(st Store) error {
		current, err := st.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.HoldsStock() {
			ledger := NewLedger(st, s.logger)
			for _, it := range current.Items {
				if _, err := ledger.Increment(ctx, it.FurnitureID, it.Quantity, ReasonDelete); err != nil {
					return err
				}
				restocked += it.Quantity
			}
		}
		if err := st.DeleteLineItems(ctx, id); err != nil {
			return err
		}
		return st.DeleteTransactionHeader(ctx, id)
	})
	if err != nil {
		return err
	}

	if restocked > 0 {
		stockMovedUnits.WithLabelValues(MovementRestock.String()).Add(float64(restocked))
	}
	s.logger.InfoContext(ctx, "transaction deleted", "transaction_id", id, "restocked_units", restocked)
	return nil
}

// =============================================================================
// STOCK RECEIPT
// =============================================================================

// ReceiveStock adds newly received units of an item.
func (s *OrderService) ReceiveStock(ctx context.Context, id FurnitureID, qty int) (int, error) {
	return NewLedger(s.store, s.logger).Increment(ctx, id, qty, ReasonReceive)
}
