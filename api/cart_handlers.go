/*
cart_handlers.go - Device-scoped cart endpoints

PURPOSE:
  Serves the Cart Aggregator over HTTP. A cart lives on a device (browser,
  app install) and holds one guest slot plus one slot per customer who has
  logged in on that device.

ENDPOINTS:
  GET    /api/devices/{device}/cart?customer_id=       Current cart
  POST   /api/devices/{device}/cart/items               Add an item
  PUT    /api/devices/{device}/cart/items/{itemID}      Set quantity (<=0 removes)
  DELETE /api/devices/{device}/cart/items/{itemID}      Remove an item
  POST   /api/devices/{device}/cart/login               Merge guest cart into customer
  POST   /api/devices/{device}/cart/logout?customer_id= Copy customer cart to guest
  POST   /api/devices/{device}/cart/checkout?customer_id=

IDENTITY:
  customer_id selects the customer slot; without it the guest slot is used.
  There is no authentication, so the caller is trusted.

SEE ALSO:
  - cart/aggregator.go: Cart rules
  - cart/checkout.go: Checkout outcomes
*/
package api

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/resale-engine/cart"
	"github.com/warp/resale-engine/commerce"
)

// CartRepositories returns the cart repository for one device.
type CartRepositories func(device string) cart.Repository

// MemoryCartRepositories keeps one in-memory repository per device.
func MemoryCartRepositories() CartRepositories {
	var devices sync.Map
	return func(device string) cart.Repository {
		repo, _ := devices.LoadOrStore(device, cart.NewMemoryRepository())
		return repo.(*cart.MemoryRepository)
	}
}

// aggregator builds the aggregator for the request's device and identity.
func (h *Handler) aggregator(r *http.Request) (*cart.Aggregator, error) {
	identity := cart.Guest
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, commerce.NewValidationError("customer_id %q is not a positive integer", raw)
		}
		identity = cart.CustomerIdentity(commerce.CustomerID(id))
	}
	device := chi.URLParam(r, "device")
	return cart.NewAggregator(h.Carts(device), identity, h.Logger), nil
}

func writeCart(w http.ResponseWriter, agg *cart.Aggregator, c cart.Cart) {
	writeJSON(w, http.StatusOK, toCartDTO(agg.Identity(), c))
}

// GetCart returns the current cart with its totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	agg, err := h.aggregator(r)
	if err != nil {
		writeDomainError(w, "Invalid cart identity", err)
		return
	}
	c, err := agg.Cart(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load cart", err)
		return
	}
	writeCart(w, agg, c)
}

// AddCartItem snapshots the item's current stock and adds it to the cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	agg, err := h.aggregator(r)
	if err != nil {
		writeDomainError(w, "Invalid cart identity", err)
		return
	}
	var req AddCartItemRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	item, err := h.Store.GetFurniture(ctx, commerce.FurnitureID(req.FurnitureID))
	if err != nil {
		writeDomainError(w, "Failed to get furniture", err)
		return
	}
	if !item.IsForSale {
		writeDomainError(w, "Item not for sale", commerce.NewValidationError("item %d is not for sale", item.ID))
		return
	}

	c, err := agg.AddToCart(ctx, cart.SnapshotOf(*item), req.Quantity)
	if err != nil {
		writeDomainError(w, "Failed to add item to cart", err)
		return
	}
	writeCart(w, agg, c)
}

// UpdateCartItem sets the quantity of an entry.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	agg, err := h.aggregator(r)
	if err != nil {
		writeDomainError(w, "Invalid cart identity", err)
		return
	}
	id, err := parseID(r, "itemID")
	if err != nil {
		writeDomainError(w, "Invalid item id", err)
		return
	}
	var req UpdateCartItemRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	c, err := agg.UpdateQuantity(r.Context(), commerce.FurnitureID(id), req.Quantity)
	if err != nil {
		writeDomainError(w, "Failed to update cart", err)
		return
	}
	writeCart(w, agg, c)
}

// RemoveCartItem drops an entry.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	agg, err := h.aggregator(r)
	if err != nil {
		writeDomainError(w, "Invalid cart identity", err)
		return
	}
	id, err := parseID(r, "itemID")
	if err != nil {
		writeDomainError(w, "Invalid item id", err)
		return
	}

	c, err := agg.Remove(r.Context(), commerce.FurnitureID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update cart", err)
		return
	}
	writeCart(w, agg, c)
}

// LoginCart merges the device's guest cart into the customer's cart.
func (h *Handler) LoginCart(w http.ResponseWriter, r *http.Request) {
	var req CartLoginRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	customer, err := h.Store.GetCustomer(ctx, commerce.CustomerID(req.CustomerID))
	if err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}

	agg := cart.NewAggregator(h.Carts(chi.URLParam(r, "device")), cart.Guest, h.Logger)
	c, err := agg.Login(ctx, customer.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to merge cart", err)
		return
	}
	writeCart(w, agg, c)
}

// LogoutCart leaves the customer's cart behind in the guest slot.
func (h *Handler) LogoutCart(w http.ResponseWriter, r *http.Request) {
	agg, err := h.aggregator(r)
	if err != nil {
		writeDomainError(w, "Invalid cart identity", err)
		return
	}

	c, err := agg.Logout(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to log out cart", err)
		return
	}
	writeCart(w, agg, c)
}

// Checkout records the customer's cart as a transaction. A store failure
// still accepts the order (202) and leaves it for reconciliation.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	agg, err := h.aggregator(r)
	if err != nil {
		writeDomainError(w, "Invalid cart identity", err)
		return
	}
	customerID, ok := agg.Identity().CustomerID()
	if !ok {
		writeDomainError(w, "Checkout failed", cart.ErrNotAuthenticated)
		return
	}
	var req CheckoutRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	customer, err := h.Store.GetCustomer(ctx, customerID)
	if err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}

	result, err := agg.Checkout(ctx, h.Orders, h.Cache, cart.CheckoutInput{
		CustomerEmail:   customer.Email,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		writeDomainError(w, "Checkout failed", err)
		return
	}

	resp := CheckoutResponse{Key: result.Order.Key, Pending: result.Pending}
	if result.Transaction != nil {
		dto := toTransactionDTO(*result.Transaction)
		resp.Transaction = &dto
	}
	status := http.StatusCreated
	if result.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}
