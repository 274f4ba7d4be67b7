/*
handlers.go - HTTP API handlers for the resale order engine

PURPOSE:
  Exposes the order/inventory engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Furniture:
    GET    /api/furniture                 List items (?for_sale=true)
    POST   /api/furniture                 Create item
    GET    /api/furniture/{id}            Get item
    DELETE /api/furniture/{id}            Delete, or deactivate if ever sold
    POST   /api/furniture/{id}/receive    Receive stock (ledger increment)

  Customers:
    GET    /api/customers                 List customers
    POST   /api/customers                 Create customer
    GET    /api/customers/{id}            Get customer
    GET    /api/customers/{id}/transactions Customer order history

  Transactions:
    GET    /api/transactions              All orders (staff view)
    POST   /api/transactions              Record a sale
    GET    /api/transactions/{id}         Get order
    PUT    /api/transactions/{id}         Change status / correct order
    DELETE /api/transactions/{id}         Delete order (restocks if held)
    GET    /api/stats                     Order counts and revenue

  Cart (cart_handlers.go):
    /api/devices/{device}/cart/*

  Reconciliation:
    GET    /api/reconciliation/runs       Run history
    POST   /api/reconciliation/process    Migrate cached orders now

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Catalog, customer and run records
  - Orders: Transaction Store operations (atomic units of work)
  - Cache: Client-resident order cache written by checkout
  - Carts: Device-scoped cart repositories
  - Scheduler: Reconciliation runs

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (dto.go tags)
  3. Call domain logic (orders, ledger, cart)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unknown furniture on create
  - 401: Checkout without a logged-in customer
  - 404: Resource not found
  - 409: Insufficient stock (with max_available), duplicate email
  - 500: Internal errors
  A replayed idempotency key is not an error: 200 with the existing order.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - cart_handlers.go: Cart endpoints
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/resale-engine/cart"
	"github.com/warp/resale-engine/commerce"
	"github.com/warp/resale-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Orders    *commerce.OrderService
	Cache     commerce.OrderCache
	Carts     CartRepositories
	Scheduler *ReconciliationScheduler
	Logger    *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, orders *commerce.OrderService, cache commerce.OrderCache,
	carts CartRepositories, scheduler *ReconciliationScheduler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:     store,
		Orders:    orders,
		Cache:     cache,
		Carts:     carts,
		Scheduler: scheduler,
		Logger:    logger,
	}
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// FURNITURE HANDLERS
// =============================================================================

// ListFurniture returns the catalog.
func (h *Handler) ListFurniture(w http.ResponseWriter, r *http.Request) {
	forSale := r.URL.Query().Get("for_sale") == "true"

	items, err := h.Store.ListFurniture(r.Context(), forSale)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list furniture", err)
		return
	}

	dtos := make([]FurnitureDTO, len(items))
	for i, f := range items {
		dtos[i] = toFurnitureDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetFurniture returns one item.
func (h *Handler) GetFurniture(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid furniture id", err)
		return
	}

	item, err := h.Store.GetFurniture(r.Context(), commerce.FurnitureID(id))
	if err != nil {
		writeDomainError(w, "Failed to get furniture", err)
		return
	}
	writeJSON(w, http.StatusOK, toFurnitureDTO(*item))
}

// CreateFurniture adds an item to the catalog.
func (h *Handler) CreateFurniture(w http.ResponseWriter, r *http.Request) {
	var req CreateFurnitureRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	item := commerce.FurnitureItem{
		Name:      req.Name,
		Category:  req.Category,
		Price:     req.Price,
		Condition: commerce.Condition(req.Condition),
		Quantity:  req.Quantity,
		IsForSale: req.IsForSale == nil || *req.IsForSale,
	}
	if err := h.Store.CreateFurniture(r.Context(), &item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create furniture", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFurnitureDTO(item))
}

// RemoveFurniture deletes an unsold item or hides a sold one.
func (h *Handler) RemoveFurniture(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid furniture id", err)
		return
	}

	deactivated, err := h.Store.RemoveFurniture(r.Context(), commerce.FurnitureID(id))
	if err != nil {
		writeDomainError(w, "Failed to remove furniture", err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveFurnitureResponse{ID: id, Deactivated: deactivated})
}

// ReceiveStock books incoming units through the ledger.
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid furniture id", err)
		return
	}
	var req ReceiveStockRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Orders.ReceiveStock(ctx, commerce.FurnitureID(id), req.Quantity); err != nil {
		writeDomainError(w, "Failed to receive stock", err)
		return
	}
	item, err := h.Store.GetFurniture(ctx, commerce.FurnitureID(id))
	if err != nil {
		writeDomainError(w, "Failed to get furniture", err)
		return
	}
	writeJSON(w, http.StatusOK, toFurnitureDTO(*item))
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns all customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list customers", err)
		return
	}

	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomer returns one customer.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid customer id", err)
		return
	}

	c, err := h.Store.GetCustomer(r.Context(), commerce.CustomerID(id))
	if err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*c))
}

// CreateCustomer registers a customer.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	c := commerce.Customer{Name: req.Name, Email: req.Email}
	if err := h.Store.CreateCustomer(r.Context(), &c); err != nil {
		writeDomainError(w, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// GetCustomerTransactions returns a customer's orders, newest first.
func (h *Handler) GetCustomerTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid customer id", err)
		return
	}

	txs, err := h.Orders.GetTransactionsByCustomer(r.Context(), commerce.CustomerID(id))
	if err != nil {
		writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns every order with customer identity.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Orders.GetAllTransactions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetTransaction returns one order with its line items.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid transaction id", err)
		return
	}

	tx, err := h.Orders.GetTransaction(r.Context(), commerce.TransactionID(id))
	if err != nil {
		writeDomainError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// CreateTransaction records a sale. The idempotency key may come from the
// body or the Idempotency-Key header.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}

	tx, err := h.Orders.CreateTransaction(r.Context(), commerce.CreateTransactionInput{
		CustomerID:          commerce.CustomerID(req.CustomerID),
		Items:               toLineItemInputs(req.Items),
		TotalAmount:         req.TotalAmount,
		PaymentMethod:       req.PaymentMethod,
		ShippingAddress:     req.ShippingAddress,
		Notes:               req.Notes,
		SkipInventoryUpdate: req.SkipInventoryUpdate,
		IdempotencyKey:      key,
		Source:              commerce.SourceCheckout,
	})
	if errors.Is(err, commerce.ErrDuplicateIdempotencyKey) && tx != nil {
		writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to create transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// UpdateTransaction changes an order's status, applying the stock movement
// the transition implies, and optionally corrects its contents.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid transaction id", err)
		return
	}
	var req UpdateTransactionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	tx, err := h.Orders.UpdateTransaction(r.Context(), commerce.TransactionID(id), commerce.UpdateTransactionInput{
		Status:          commerce.Status(req.Status),
		Notes:           req.Notes,
		Items:           toLineItemInputs(req.Items),
		TotalAmount:     req.TotalAmount,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		writeDomainError(w, "Failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// DeleteTransaction removes an order, restocking it if it still held stock.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid transaction id", err)
		return
	}

	if err := h.Orders.DeleteTransaction(r.Context(), commerce.TransactionID(id)); err != nil {
		writeDomainError(w, "Failed to delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStats returns order counts by status and revenue.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Orders.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		byStatus[string(s)] = n
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		TotalTransactions: stats.TotalTransactions,
		ByStatus:          byStatus,
		Revenue:           stats.Revenue,
	})
}

// =============================================================================
// RECONCILIATION ENDPOINTS
// =============================================================================

// ListReconciliationRuns returns reconciliation run history, newest first.
// GET /api/reconciliation/runs?limit=N
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListReconciliationRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get reconciliation runs", err)
		return
	}

	dtos := make([]ReconciliationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	resp := ReconciliationRunsResponse{Runs: dtos}
	if next, ok := h.Scheduler.GetNextRunTime(); ok {
		resp.NextRunAt = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProcessReconciliation runs one migration pass immediately.
// POST /api/reconciliation/process
func (h *Handler) ProcessReconciliation(w http.ResponseWriter, r *http.Request) {
	run, report, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessReconciliationResponse{Run: toRunDTO(run), Report: report})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}
	status := statusFor(err)

	var shortage *commerce.InsufficientStockError
	var exceeded *cart.StockExceededError
	switch {
	case errors.As(err, &shortage):
		resp.MaxAvailable = &shortage.Available
	case errors.As(err, &exceeded):
		resp.MaxAvailable = &exceeded.Available
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, commerce.ErrInsufficientStock), errors.Is(err, cart.ErrStockExceeded):
		return http.StatusConflict
	case errors.Is(err, sqlite.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, cart.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, commerce.ErrValidation), errors.Is(err, cart.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, commerce.ErrCreateFailed) && commerce.IsNotFound(err):
		// Unknown furniture referenced by a new order is bad input.
		return http.StatusBadRequest
	case commerce.IsNotFound(err), errors.Is(err, cart.ErrItemNotInCart):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// decodeRequest reads a JSON body into dst and runs its validator tags.
// An empty body decodes to the zero value.
func decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return commerce.NewValidationError("malformed JSON: %v", err)
	}

	err := validate.Struct(dst)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &commerce.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Problems = append(verr.Problems, describeFieldError(fe))
	}
	return verr
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt", "gte", "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be an email address", fe.Field())
	}
	return fmt.Sprintf("%s is not a valid %s", fe.Field(), fe.Tag())
}

func parseID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, commerce.NewValidationError("%s %q is not a positive integer", name, raw)
	}
	return id, nil
}
