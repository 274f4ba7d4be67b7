/*
handlers_test.go - HTTP tests for the API layer

Tests for:
- Transaction create/update/delete status codes and stock effects
- Error mapping (400/401/404/409 with max_available)
- Cart flow: guest add, login merge, checkout, reconciliation replay
- Reconciliation run recording and the metrics endpoint
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/resale-engine/cart"
	"github.com/warp/resale-engine/commerce"
	memstore "github.com/warp/resale-engine/commerce/store"
	"github.com/warp/resale-engine/reconcile"
	"github.com/warp/resale-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	store  *sqlite.Store
	cache  *memstore.MemoryOrderCache
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orders := commerce.NewOrderService(store, logger)
	cache := memstore.NewMemoryOrderCache()
	matcher := reconcile.New(reconcile.Config{Store: store, Orders: orders, Cache: cache, Logger: logger})
	scheduler := NewReconciliationScheduler(store, matcher, logger)

	h := NewHandler(store, orders, cache, MemoryCartRepositories(), scheduler, logger)
	return &testServer{store: store, cache: cache, router: NewRouter(h, nil)}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) customer(t *testing.T, email string) CustomerDTO {
	rec := s.do(t, http.MethodPost, "/api/customers", CreateCustomerRequest{Name: "Sam Lee", Email: email})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[CustomerDTO](t, rec)
}

func (s *testServer) furniture(t *testing.T, name, price string, qty int) FurnitureDTO {
	rec := s.do(t, http.MethodPost, "/api/furniture", CreateFurnitureRequest{
		Name:      name,
		Category:  "Seating",
		Price:     decimal.RequireFromString(price),
		Condition: "Good",
		Quantity:  qty,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[FurnitureDTO](t, rec)
}

func (s *testServer) stock(t *testing.T, id int64) int {
	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/furniture/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[FurnitureDTO](t, rec).Quantity
}

func saleRequest(customer int64, furniture int64, qty int, price string) CreateTransactionRequest {
	p := decimal.RequireFromString(price)
	return CreateTransactionRequest{
		CustomerID:    customer,
		Items:         []LineItemRequest{{FurnitureID: furniture, Quantity: qty, Price: p}},
		TotalAmount:   commerce.WithTax(p.Mul(decimal.NewFromInt(int64(qty)))),
		PaymentMethod: "venmo",
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestCreateTransaction_DecrementsStock(t *testing.T) {
	// GIVEN: A customer and a sofa with 3 in stock
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)

	// WHEN: Buying 2
	rec := s.do(t, http.MethodPost, "/api/transactions", saleRequest(c.ID, sofa.ID, 2, "100.00"))

	// THEN: 201 with a Processing order and 1 sofa left
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decodeBody[TransactionDTO](t, rec)
	assert.Equal(t, "Processing", tx.Status)
	assert.Equal(t, "Venmo", tx.PaymentMethod)
	assert.Equal(t, 2, tx.ItemCount)
	assert.True(t, decimal.RequireFromString("208").Equal(tx.TotalAmount))
	assert.Equal(t, 1, s.stock(t, sofa.ID))
}

func TestCreateTransaction_InsufficientStockIsConflict(t *testing.T) {
	// GIVEN: 3 sofas in stock
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)

	// WHEN: Ordering 5
	rec := s.do(t, http.MethodPost, "/api/transactions", saleRequest(c.ID, sofa.ID, 5, "100.00"))

	// THEN: 409 reports what is available and nothing changed
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	require.NotNil(t, resp.MaxAvailable)
	assert.Equal(t, 3, *resp.MaxAvailable)
	assert.Equal(t, 3, s.stock(t, sofa.ID))

	list := s.do(t, http.MethodGet, "/api/transactions", nil)
	assert.Empty(t, decodeBody[[]TransactionDTO](t, list))
}

func TestCreateTransaction_IdempotencyKeyReplay(t *testing.T) {
	// GIVEN: An order placed with an Idempotency-Key header
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)
	req := saleRequest(c.ID, sofa.ID, 1, "100.00")

	first := s.do(t, http.MethodPost, "/api/transactions", req, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code)

	// WHEN: The same request is replayed
	second := s.do(t, http.MethodPost, "/api/transactions", req, "Idempotency-Key", "k-1")

	// THEN: 200 with the original order, stock moved once
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, decodeBody[TransactionDTO](t, first).ID, decodeBody[TransactionDTO](t, second).ID)
	assert.Equal(t, 2, s.stock(t, sofa.ID))
}

func TestCreateTransaction_BadInput(t *testing.T) {
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)

	tests := []struct {
		name string
		req  CreateTransactionRequest
	}{
		{"no items", CreateTransactionRequest{CustomerID: c.ID, TotalAmount: decimal.NewFromInt(1)}},
		{"zero total", CreateTransactionRequest{CustomerID: c.ID, Items: []LineItemRequest{{FurnitureID: sofa.ID, Quantity: 1}}}},
		{"zero quantity", CreateTransactionRequest{CustomerID: c.ID, TotalAmount: decimal.NewFromInt(1), Items: []LineItemRequest{{FurnitureID: sofa.ID}}}},
		{"unknown customer", saleRequest(999, sofa.ID, 1, "100.00")},
		{"unknown furniture", saleRequest(c.ID, 999, 1, "100.00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/transactions", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 3, s.stock(t, sofa.ID))
}

func TestUpdateTransaction_RefundRestocksOnce(t *testing.T) {
	// GIVEN: A placed order for 2 of 3 sofas
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)
	tx := decodeBody[TransactionDTO](t, s.do(t, http.MethodPost, "/api/transactions", saleRequest(c.ID, sofa.ID, 2, "100.00")))
	path := fmt.Sprintf("/api/transactions/%d", tx.ID)

	// WHEN: The order is refunded twice
	first := s.do(t, http.MethodPut, path, UpdateTransactionRequest{Status: "Refunded"})
	second := s.do(t, http.MethodPut, path, UpdateTransactionRequest{Status: "Refunded"})

	// THEN: Stock is restored exactly once
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "Refunded", decodeBody[TransactionDTO](t, second).Status)
	assert.Equal(t, 3, s.stock(t, sofa.ID))
}

func TestUpdateTransaction_Errors(t *testing.T) {
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)
	tx := decodeBody[TransactionDTO](t, s.do(t, http.MethodPost, "/api/transactions", saleRequest(c.ID, sofa.ID, 1, "100.00")))

	rec := s.do(t, http.MethodPut, fmt.Sprintf("/api/transactions/%d", tx.ID), UpdateTransactionRequest{Status: "Lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/transactions/999", UpdateTransactionRequest{Status: "Shipped"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/transactions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTransaction_RestocksAndDisappears(t *testing.T) {
	// GIVEN: A placed order
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)
	tx := decodeBody[TransactionDTO](t, s.do(t, http.MethodPost, "/api/transactions", saleRequest(c.ID, sofa.ID, 2, "100.00")))
	path := fmt.Sprintf("/api/transactions/%d", tx.ID)

	// WHEN: Deleting it
	rec := s.do(t, http.MethodDelete, path, nil)

	// THEN: 204, stock restored, order gone
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 3, s.stock(t, sofa.ID))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, path, nil).Code)
}

func TestCustomerTransactionsAndStats(t *testing.T) {
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 5)
	s.do(t, http.MethodPost, "/api/transactions", saleRequest(c.ID, sofa.ID, 1, "100.00"))
	s.do(t, http.MethodPost, "/api/transactions", saleRequest(c.ID, sofa.ID, 1, "100.00"))

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/customers/%d/transactions", c.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]TransactionDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/customers/999/transactions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stats := decodeBody[StatsDTO](t, s.do(t, http.MethodGet, "/api/stats", nil))
	assert.Equal(t, 2, stats.TotalTransactions)
	assert.Equal(t, 2, stats.ByStatus["Processing"])
	assert.True(t, decimal.RequireFromString("208").Equal(stats.Revenue))
}

func TestCreateCustomer_DuplicateEmailIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.customer(t, "sam@example.com")

	rec := s.do(t, http.MethodPost, "/api/customers", CreateCustomerRequest{Name: "Other", Email: "SAM@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/customers", CreateCustomerRequest{Name: "Bad", Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiveStock(t *testing.T) {
	s := newTestServer(t)
	sofa := s.furniture(t, "Sofa", "100.00", 0)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/furniture/%d/receive", sofa.ID), ReceiveStockRequest{Quantity: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, decodeBody[FurnitureDTO](t, rec).Quantity)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/furniture/%d/receive", sofa.ID), ReceiveStockRequest{Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CART
// =============================================================================

func TestCart_GuestLoginCheckoutThenReconcile(t *testing.T) {
	// GIVEN: A guest with 2 of 3 sofas in the cart
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)
	base := "/api/devices/phone-1/cart"

	rec := s.do(t, http.MethodPost, base+"/items", AddCartItemRequest{FurnitureID: sofa.ID, Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: Adding 2 more
	rec = s.do(t, http.MethodPost, base+"/items", AddCartItemRequest{FurnitureID: sofa.ID, Quantity: 2})

	// THEN: Rejected with the stock ceiling
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 3, *decodeBody[ErrorResponse](t, rec).MaxAvailable)

	// WHEN: Checking out as guest
	rec = s.do(t, http.MethodPost, base+"/checkout", CheckoutRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// WHEN: Logging in and checking out
	rec = s.do(t, http.MethodPost, base+"/login", CartLoginRequest{CustomerID: c.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	merged := decodeBody[CartDTO](t, rec)
	assert.Equal(t, 2, merged.TotalItems)
	assert.Equal(t, string(cart.CustomerIdentity(commerce.CustomerID(c.ID))), merged.Identity)

	customerPath := fmt.Sprintf("%s/checkout?customer_id=%d", base, c.ID)
	rec = s.do(t, http.MethodPost, customerPath, CheckoutRequest{ShippingAddress: "1 Main St", PaymentMethod: "cash"})

	// THEN: Order recorded, stock moved, cart empty, cached copy kept
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeBody[CheckoutResponse](t, rec)
	require.NotNil(t, out.Transaction)
	assert.False(t, out.Pending)
	assert.Equal(t, out.Key, out.Transaction.IdempotencyKey)
	assert.Equal(t, 1, s.stock(t, sofa.ID))

	cartRec := s.do(t, http.MethodGet, fmt.Sprintf("%s?customer_id=%d", base, c.ID), nil)
	assert.Equal(t, 0, decodeBody[CartDTO](t, cartRec).TotalItems)

	cached, err := s.cache.ListByEmail(context.Background(), "sam@example.com")
	require.NoError(t, err)
	require.Len(t, cached, 1)

	// WHEN: Reconciliation runs afterwards
	rec = s.do(t, http.MethodPost, "/api/reconciliation/process", nil)

	// THEN: The cached order is recognised, nothing is imported twice
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	proc := decodeBody[ProcessReconciliationResponse](t, rec)
	assert.Equal(t, 0, proc.Report.Migrated)
	assert.Equal(t, 1, proc.Report.AlreadyMigrated)
	assert.Equal(t, RunStatusCompleted, proc.Run.Status)
	assert.Equal(t, 1, s.stock(t, sofa.ID))
}

func TestCart_UpdateRemoveAndLogout(t *testing.T) {
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)
	base := "/api/devices/tablet/cart"
	asCustomer := fmt.Sprintf("?customer_id=%d", c.ID)

	s.do(t, http.MethodPost, base+"/items"+asCustomer, AddCartItemRequest{FurnitureID: sofa.ID, Quantity: 1})

	rec := s.do(t, http.MethodPut, fmt.Sprintf("%s/items/%d%s", base, sofa.ID, asCustomer), UpdateCartItemRequest{Quantity: 4})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("%s/items/%d%s", base, sofa.ID, asCustomer), UpdateCartItemRequest{Quantity: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[CartDTO](t, rec).TotalItems)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("%s/items/999%s", base, asCustomer), UpdateCartItemRequest{Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Logout leaves the cart behind for the guest on this device.
	rec = s.do(t, http.MethodPost, base+"/logout"+asCustomer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	guest := decodeBody[CartDTO](t, s.do(t, http.MethodGet, base, nil))
	assert.Equal(t, 3, guest.TotalItems)
	assert.Equal(t, "guest", guest.Identity)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("%s/items/%d", base, sofa.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[CartDTO](t, rec).Entries)

	// Other devices are untouched.
	other := decodeBody[CartDTO](t, s.do(t, http.MethodGet, "/api/devices/laptop/cart", nil))
	assert.Equal(t, 0, other.TotalItems)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestProcessReconciliation_MigratesCachedOrder(t *testing.T) {
	// GIVEN: A cached order that never reached the store
	s := newTestServer(t)
	c := s.customer(t, "sam@example.com")
	sofa := s.furniture(t, "Sofa", "100.00", 3)
	require.NoError(t, s.cache.Save(context.Background(), commerce.CachedOrder{
		Key:           "offline-1",
		CustomerEmail: "sam@example.com",
		Items:         []commerce.CachedItem{{FurnitureID: commerce.FurnitureID(sofa.ID), Name: "Sofa", Quantity: 1, Price: decimal.NewFromInt(100)}},
		Total:         decimal.NewFromInt(104),
		Date:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		PaymentMethod: "Cash",
	}))

	// WHEN: Processing reconciliation
	rec := s.do(t, http.MethodPost, "/api/reconciliation/process", nil)

	// THEN: One order imported, its sofa taken from stock, and a completed run recorded
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[ProcessReconciliationResponse](t, rec).Report.Migrated)
	assert.Equal(t, 2, s.stock(t, sofa.ID))

	txs := decodeBody[[]TransactionDTO](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/customers/%d/transactions", c.ID), nil))
	require.Len(t, txs, 1)
	assert.Equal(t, "migration", txs[0].Source)

	runs := s.do(t, http.MethodGet, "/api/reconciliation/runs", nil)
	require.Equal(t, http.StatusOK, runs.Code)
	body := decodeBody[ReconciliationRunsResponse](t, runs)
	require.Len(t, body.Runs, 1)
	assert.Equal(t, 1, body.Runs[0].Migrated)
	assert.NotNil(t, body.Runs[0].CompletedAt)
	assert.Nil(t, body.NextRunAt, "scheduler was never started")
}

func TestListReconciliationRuns_ShowsNextScheduledRun(t *testing.T) {
	// GIVEN: A running scheduler with an hourly interval
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := NewReconciliationScheduler(store, &fakeMigrator{}, logger)
	scheduler.CheckInterval = time.Hour
	scheduler.Start()
	t.Cleanup(scheduler.Stop)
	orders := commerce.NewOrderService(store, logger)
	h := NewHandler(store, orders, memstore.NewMemoryOrderCache(), MemoryCartRepositories(), scheduler, logger)
	router := NewRouter(h, nil)

	// WHEN: Listing runs
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reconciliation/runs", nil))

	// THEN: The response says when the next pass starts
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[ReconciliationRunsResponse](t, rec)
	require.NotNil(t, body.NextRunAt)
	assert.True(t, body.NextRunAt.After(time.Now().Add(59*time.Minute)))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/furniture", nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resale_http_requests_total")
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", commerce.NewValidationError("bad"), http.StatusBadRequest},
		{"empty cart", cart.ErrEmptyCart, http.StatusBadRequest},
		{"missing furniture on create", &commerce.CreateError{Cause: commerce.ErrFurnitureNotFound}, http.StatusBadRequest},
		{"stock on create", &commerce.CreateError{Cause: &commerce.InsufficientStockError{Available: 1, Requested: 2}}, http.StatusConflict},
		{"cart stock", &cart.StockExceededError{Available: 1, Requested: 2}, http.StatusConflict},
		{"not authenticated", cart.ErrNotAuthenticated, http.StatusUnauthorized},
		{"transaction missing", commerce.ErrTransactionNotFound, http.StatusNotFound},
		{"not in cart", cart.ErrItemNotInCart, http.StatusNotFound},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
