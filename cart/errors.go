package cart

import (
	"errors"
	"fmt"

	"github.com/warp/resale-engine/commerce"
)

var (
	// ErrStockExceeded is returned when a cart quantity would exceed the
	// item's known stock.
	ErrStockExceeded = errors.New("quantity exceeds available stock")

	// ErrItemNotInCart is returned when updating an item the cart does not hold.
	ErrItemNotInCart = errors.New("item not in cart")

	// ErrNotAuthenticated is returned when checkout runs under the guest identity.
	ErrNotAuthenticated = errors.New("checkout requires a logged-in customer")

	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
)

// StockExceededError reports a cart quantity above the item's stock.
// Requested is the quantity the entry would have held and Available the
// snapshot stock. Remaining is how many more units the caller may still ask
// for: stock minus what the cart already holds when adding, the full stock
// when setting a quantity.
type StockExceededError struct {
	ItemID    commerce.FurnitureID
	Requested int
	Available int
	Remaining int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("item %d: requested %d, only %d available", e.ItemID, e.Requested, e.Available)
}

func (e *StockExceededError) Unwrap() error {
	return ErrStockExceeded
}
