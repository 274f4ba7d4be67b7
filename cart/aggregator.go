package cart

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warp/resale-engine/commerce"
)

// Aggregator operates on the cart of one session. It is not safe for
// concurrent use; each session owns its own Aggregator.
type Aggregator struct {
	repo     Repository
	identity Identity
	logger   *slog.Logger
}

// NewAggregator returns an aggregator bound to identity.
func NewAggregator(repo Repository, identity Identity, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if identity == "" {
		identity = Guest
	}
	return &Aggregator{repo: repo, identity: identity, logger: logger}
}

// Identity returns the identity whose cart is in use.
func (a *Aggregator) Identity() Identity {
	return a.identity
}

// Cart returns the current cart.
func (a *Aggregator) Cart(ctx context.Context) (Cart, error) {
	return a.repo.Get(ctx, a.identity)
}

// TotalItems sums quantities in the current cart.
func (a *Aggregator) TotalItems(ctx context.Context) (int, error) {
	c, err := a.repo.Get(ctx, a.identity)
	if err != nil {
		return 0, err
	}
	return c.TotalItems(), nil
}

// TotalPrice sums subtotals in the current cart, before tax.
func (a *Aggregator) TotalPrice(ctx context.Context) (decimal.Decimal, error) {
	c, err := a.repo.Get(ctx, a.identity)
	if err != nil {
		return decimal.Zero, err
	}
	return c.TotalPrice(), nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AddToCart adds qty units of item. The combined quantity may not exceed the
// snapshot's stock; on rejection the cart is left unchanged.
func (a *Aggregator) AddToCart(ctx context.Context, item ItemSnapshot, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, commerce.NewValidationError("quantity must be positive, got %d", qty)
	}

	c, err := a.repo.Get(ctx, a.identity)
	if err != nil {
		return Cart{}, err
	}

	i := c.find(item.ID)
	existing := 0
	if i >= 0 {
		existing = c.Entries[i].Quantity
	}
	if total := existing + qty; total > item.Quantity {
		return c, &StockExceededError{
			ItemID: item.ID, Requested: total, Available: item.Quantity,
			Remaining: max(item.Quantity-existing, 0),
		}
	}

	if i >= 0 {
		c.Entries[i] = Entry{Item: item, Quantity: existing + qty}
	} else {
		c.Entries = append(c.Entries, Entry{Item: item, Quantity: qty})
	}
	if err := a.repo.Put(ctx, a.identity, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// UpdateQuantity sets an entry's quantity. qty <= 0 removes the entry.
func (a *Aggregator) UpdateQuantity(ctx context.Context, id commerce.FurnitureID, qty int) (Cart, error) {
	if qty <= 0 {
		return a.Remove(ctx, id)
	}

	c, err := a.repo.Get(ctx, a.identity)
	if err != nil {
		return Cart{}, err
	}
	i := c.find(id)
	if i < 0 {
		return c, ErrItemNotInCart
	}
	if stock := c.Entries[i].Item.Quantity; qty > stock {
		return c, &StockExceededError{ItemID: id, Requested: qty, Available: stock, Remaining: stock}
	}

	c.Entries[i].Quantity = qty
	if err := a.repo.Put(ctx, a.identity, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Remove drops an entry. Removing an absent item is a no-op.
func (a *Aggregator) Remove(ctx context.Context, id commerce.FurnitureID) (Cart, error) {
	c, err := a.repo.Get(ctx, a.identity)
	if err != nil {
		return Cart{}, err
	}
	if i := c.find(id); i >= 0 {
		c.Entries = append(c.Entries[:i:i], c.Entries[i+1:]...)
		if err := a.repo.Put(ctx, a.identity, c); err != nil {
			return Cart{}, err
		}
	}
	return c, nil
}

// Clear empties the current cart.
func (a *Aggregator) Clear(ctx context.Context) error {
	return a.repo.Delete(ctx, a.identity)
}

// =============================================================================
// IDENTITY TRANSITIONS
// =============================================================================

// Login merges the guest cart into the customer's cart and switches to the
// customer identity. Quantities of shared items are summed and the guest's
// snapshot wins. The guest cart is cleared.
func (a *Aggregator) Login(ctx context.Context, id commerce.CustomerID) (Cart, error) {
	target := CustomerIdentity(id)

	guest, err := a.repo.Get(ctx, Guest)
	if err != nil {
		return Cart{}, err
	}
	merged, err := a.repo.Get(ctx, target)
	if err != nil {
		return Cart{}, err
	}

	for _, g := range guest.Entries {
		if i := merged.find(g.Item.ID); i >= 0 {
			merged.Entries[i] = Entry{Item: g.Item, Quantity: merged.Entries[i].Quantity + g.Quantity}
			continue
		}
		merged.Entries = append(merged.Entries, g)
	}

	if err := a.repo.Put(ctx, target, merged); err != nil {
		return Cart{}, err
	}
	if err := a.repo.Delete(ctx, Guest); err != nil {
		return Cart{}, err
	}

	a.identity = target
	a.logger.DebugContext(ctx, "cart merged on login",
		"customer_id", id, "guest_entries", len(guest.Entries), "entries", len(merged.Entries))
	return merged, nil
}

// Logout copies the customer cart verbatim into the guest slot, clears the
// customer slot and switches to the guest identity. The next anonymous
// session on the same device sees the cart that was just in use.
func (a *Aggregator) Logout(ctx context.Context) (Cart, error) {
	if a.identity.IsGuest() {
		return a.repo.Get(ctx, Guest)
	}

	c, err := a.repo.Get(ctx, a.identity)
	if err != nil {
		return Cart{}, err
	}
	if err := a.repo.Put(ctx, Guest, c); err != nil {
		return Cart{}, err
	}
	if err := a.repo.Delete(ctx, a.identity); err != nil {
		return Cart{}, err
	}

	a.identity = Guest
	return c, nil
}
