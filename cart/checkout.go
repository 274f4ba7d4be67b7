package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/resale-engine/commerce"
)

// OrderPlacer records a sale. *commerce.OrderService satisfies it.
type OrderPlacer interface {
	CreateTransaction(ctx context.Context, in commerce.CreateTransactionInput) (*commerce.Transaction, error)
}

// CheckoutInput carries what the cart does not know.
type CheckoutInput struct {
	CustomerEmail   string
	ShippingAddress string
	PaymentMethod   string
	Notes           string
}

// CheckoutResult describes a checkout that was accepted.
type CheckoutResult struct {
	// Transaction is nil when Pending is set.
	Transaction *commerce.Transaction
	Order       commerce.CachedOrder

	// Pending means the store could not be reached. The order stays in the
	// cache and the reconciliation matcher will record it, and take its stock,
	// later.
	Pending bool
}

// Checkout turns the current customer cart into a transaction.
//
// The order is cached under a fresh key before the store is called and the
// same key is sent as the transaction's idempotency key, so a cached copy
// and its stored transaction can always be paired later. Outcomes:
//
//	stored (or already stored)   cart cleared, cached copy kept
//	rejected by the store        cached copy removed, cart kept
//	store failure                cached copy kept, cart cleared, Pending
func (a *Aggregator) Checkout(ctx context.Context, placer OrderPlacer, cache commerce.OrderCache, in CheckoutInput) (*CheckoutResult, error) {
	customerID, ok := a.identity.CustomerID()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	email := strings.TrimSpace(in.CustomerEmail)
	if email == "" {
		return nil, commerce.NewValidationError("customer email is required")
	}

	c, err := a.repo.Get(ctx, a.identity)
	if err != nil {
		return nil, err
	}
	if len(c.Entries) == 0 {
		return nil, ErrEmptyCart
	}

	order := commerce.CachedOrder{
		Key:             uuid.NewString(),
		CustomerEmail:   email,
		Items:           make([]commerce.CachedItem, len(c.Entries)),
		Total:           commerce.WithTax(c.TotalPrice()),
		Date:            time.Now().UTC(),
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   string(commerce.NormalizePaymentMethod(in.PaymentMethod)),
	}
	items := make([]commerce.LineItemInput, len(c.Entries))
	for i, e := range c.Entries {
		order.Items[i] = commerce.CachedItem{FurnitureID: e.Item.ID, Name: e.Item.Name, Quantity: e.Quantity, Price: e.Item.Price}
		items[i] = commerce.LineItemInput{FurnitureID: e.Item.ID, Quantity: e.Quantity, Price: e.Item.Price}
	}

	if err := cache.Save(ctx, order); err != nil {
		return nil, err
	}

	tx, err := placer.CreateTransaction(ctx, commerce.CreateTransactionInput{
		CustomerID:      customerID,
		Items:           items,
		TotalAmount:     order.Total,
		PaymentMethod:   order.PaymentMethod,
		ShippingAddress: in.ShippingAddress,
		Notes:           in.Notes,
		IdempotencyKey:  order.Key,
		CreatedAt:       order.Date,
		Source:          commerce.SourceCheckout,
	})
	switch {
	case err == nil, errors.Is(err, commerce.ErrDuplicateIdempotencyKey):
		if clearErr := a.repo.Delete(ctx, a.identity); clearErr != nil {
			a.logger.WarnContext(ctx, "failed to clear cart after checkout", "error", clearErr)
		}
		return &CheckoutResult{Transaction: tx, Order: order}, nil

	case commerce.IsClientError(err) || commerce.IsNotFound(err):
		if rmErr := cache.Remove(ctx, email, order.Key); rmErr != nil {
			a.logger.WarnContext(ctx, "failed to drop rejected cached order", "key", order.Key, "error", rmErr)
		}
		return nil, err

	default:
		a.logger.WarnContext(ctx, "checkout kept in order cache for reconciliation",
			"key", order.Key, "customer_id", customerID, "error", err)
		if clearErr := a.repo.Delete(ctx, a.identity); clearErr != nil {
			a.logger.WarnContext(ctx, "failed to clear cart after checkout", "error", clearErr)
		}
		return &CheckoutResult{Order: order, Pending: true}, nil
	}
}
