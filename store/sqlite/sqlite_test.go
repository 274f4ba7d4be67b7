package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/resale-engine/commerce"
	"github.com/warp/resale-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedFurniture(t *testing.T, store *sqlite.Store, name string, qty int) *commerce.FurnitureItem {
	item := &commerce.FurnitureItem{
		Name:      name,
		Category:  "Seating",
		Price:     decimal.RequireFromString("100.00"),
		Condition: commerce.ConditionGood,
		Quantity:  qty,
		IsForSale: true,
	}
	require.NoError(t, store.CreateFurniture(context.Background(), item))
	return item
}

func seedCustomer(t *testing.T, store *sqlite.Store, email string) *commerce.Customer {
	c := &commerce.Customer{Name: "Test Customer", Email: email}
	require.NoError(t, store.CreateCustomer(context.Background(), c))
	return c
}

func insertSale(t *testing.T, store *sqlite.Store, customer commerce.CustomerID, at time.Time, key string, items ...commerce.LineItem) *commerce.Transaction {
	ctx := context.Background()
	tx := &commerce.Transaction{
		CustomerID:     customer,
		CreatedAt:      at,
		UpdatedAt:      at,
		TotalAmount:    decimal.RequireFromString("104.00"),
		PaymentMethod:  commerce.PaymentCash,
		Status:         commerce.StatusProcessing,
		IdempotencyKey: key,
		Source:         commerce.SourceCheckout,
	}
	require.NoError(t, store.InsertTransaction(ctx, tx))
	for i := range items {
		items[i].TransactionID = tx.ID
		require.NoError(t, store.InsertLineItem(ctx, &items[i]))
	}
	return tx
}

// =============================================================================
// STOCK TESTS
// =============================================================================

func TestAdjustStock_DecrementWithinStock(t *testing.T) {
	store := newTestStore(t)
	item := seedFurniture(t, store, "Oak Chair", 3)

	qty, err := store.AdjustStock(context.Background(), item.ID, -2)

	require.NoError(t, err)
	assert.Equal(t, 1, qty)
}

func TestAdjustStock_NeverGoesNegative(t *testing.T) {
	// GIVEN: An item with 1 unit
	// WHEN: Decrementing by 2
	// THEN: InsufficientStockError, quantity unchanged

	store := newTestStore(t)
	ctx := context.Background()
	item := seedFurniture(t, store, "Oak Chair", 1)

	_, err := store.AdjustStock(ctx, item.ID, -2)

	var stockErr *commerce.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)

	got, err := store.GetFurniture(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)
}

func TestAdjustStock_MissingItem(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AdjustStock(context.Background(), 999, 1)

	assert.ErrorIs(t, err, commerce.ErrFurnitureNotFound)
}

// =============================================================================
// UNIT OF WORK TESTS
// =============================================================================

func TestWithTx_RollsBackEverything(t *testing.T) {
	// GIVEN: A header, a line item and a stock decrement inside one unit
	// WHEN: The callback fails afterwards
	// THEN: None of the writes are visible

	store := newTestStore(t)
	ctx := context.Background()
	item := seedFurniture(t, store, "Sofa", 5)
	customer := seedCustomer(t, store, "a@example.com")
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(st commerce.Store) error {
		tx := &commerce.Transaction{
			CustomerID: customer.ID, CreatedAt: time.Now(), UpdatedAt: time.Now(),
			TotalAmount: decimal.NewFromInt(1), PaymentMethod: commerce.PaymentCash,
			Status: commerce.StatusProcessing, Source: commerce.SourceCheckout,
		}
		require.NoError(t, st.InsertTransaction(ctx, tx))
		require.NoError(t, st.InsertLineItem(ctx, &commerce.LineItem{
			TransactionID: tx.ID, FurnitureID: item.ID, Quantity: 2, PriceEach: decimal.NewFromInt(1),
		}))
		_, err := st.AdjustStock(ctx, item.ID, -2)
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	txs, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
	got, err := store.GetFurniture(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestInsertTransaction_DuplicateIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	customer := seedCustomer(t, store, "a@example.com")
	insertSale(t, store, customer.ID, time.Now(), "key-1")

	tx := &commerce.Transaction{
		CustomerID: customer.ID, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		TotalAmount: decimal.NewFromInt(1), PaymentMethod: commerce.PaymentCash,
		Status: commerce.StatusProcessing, IdempotencyKey: "key-1", Source: commerce.SourceCheckout,
	}
	err := store.InsertTransaction(context.Background(), tx)

	assert.ErrorIs(t, err, commerce.ErrDuplicateIdempotencyKey)
}

func TestInsertTransaction_UnkeyedTransactionsDoNotCollide(t *testing.T) {
	store := newTestStore(t)
	customer := seedCustomer(t, store, "a@example.com")

	insertSale(t, store, customer.ID, time.Now(), "")
	insertSale(t, store, customer.ID, time.Now(), "")

	txs, err := store.ListTransactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestGetTransaction_LoadsItemsAndCustomer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customer := seedCustomer(t, store, "a@example.com")
	chair := seedFurniture(t, store, "Oak Chair", 4)
	created := insertSale(t, store, customer.ID, time.Now(), "key-1",
		commerce.LineItem{FurnitureID: chair.ID, Quantity: 2, PriceEach: decimal.RequireFromString("50.00")})

	got, err := store.GetTransaction(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", got.CustomerEmail)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Oak Chair", got.Items[0].FurnitureName)
	assert.True(t, got.Items[0].PriceEach.Equal(decimal.RequireFromString("50")))

	byKey, err := store.GetTransactionByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byKey.ID)

	_, err = store.GetTransactionByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, commerce.ErrTransactionNotFound)
}

func TestListTransactionsByCustomer_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	customer := seedCustomer(t, store, "a@example.com")
	other := seedCustomer(t, store, "b@example.com")
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	older := insertSale(t, store, customer.ID, base, "")
	newer := insertSale(t, store, customer.ID, base.Add(90*time.Millisecond), "")
	insertSale(t, store, other.ID, base.Add(time.Hour), "")

	txs, err := store.ListTransactionsByCustomer(context.Background(), customer.ID)
	require.NoError(t, err)

	require.Len(t, txs, 2)
	assert.Equal(t, newer.ID, txs[0].ID)
	assert.Equal(t, older.ID, txs[1].ID)
}

func TestListTransactions_MoreRowsThanBindVariables(t *testing.T) {
	// GIVEN more transactions than SQLite allows bound variables in one statement
	store := newTestStore(t)
	ctx := context.Background()
	customer := seedCustomer(t, store, "bulk@example.com")
	chair := seedFurniture(t, store, "Chair", 1)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	const count = 33000

	err := store.WithTx(ctx, func(st commerce.Store) error {
		for i := 0; i < count; i++ {
			tx := &commerce.Transaction{
				CustomerID:    customer.ID,
				CreatedAt:     base.Add(time.Duration(i) * time.Millisecond),
				UpdatedAt:     base,
				TotalAmount:   decimal.RequireFromString("104.00"),
				PaymentMethod: commerce.PaymentCash,
				Status:        commerce.StatusProcessing,
				Source:        commerce.SourceCheckout,
			}
			if err := st.InsertTransaction(ctx, tx); err != nil {
				return err
			}
			item := &commerce.LineItem{
				TransactionID: tx.ID,
				FurnitureID:   chair.ID,
				Quantity:      1,
				PriceEach:     decimal.RequireFromString("100.00"),
			}
			if err := st.InsertLineItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	// WHEN listing all of them, and the customer's subset
	all, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	mine, err := store.ListTransactionsByCustomer(ctx, customer.ID)
	require.NoError(t, err)

	// THEN every header comes back with its line item attached
	require.Len(t, all, count)
	require.Len(t, mine, count)
	for _, tx := range []commerce.Transaction{all[0], all[count-1], mine[count/2]} {
		require.Len(t, tx.Items, 1)
		assert.Equal(t, chair.ID, tx.Items[0].FurnitureID)
		assert.Equal(t, "Chair", tx.Items[0].FurnitureName)
	}
}

func TestDeleteTransactionHeader_Missing(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteTransactionHeader(context.Background(), 42)

	assert.ErrorIs(t, err, commerce.ErrTransactionNotFound)
}

// =============================================================================
// FURNITURE / CUSTOMER TESTS
// =============================================================================

func TestRemoveFurniture_SoldItemIsDeactivated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customer := seedCustomer(t, store, "a@example.com")
	sold := seedFurniture(t, store, "Desk", 1)
	unsold := seedFurniture(t, store, "Lamp", 1)
	insertSale(t, store, customer.ID, time.Now(), "",
		commerce.LineItem{FurnitureID: sold.ID, Quantity: 1, PriceEach: decimal.NewFromInt(10)})

	deactivated, err := store.RemoveFurniture(ctx, sold.ID)
	require.NoError(t, err)
	assert.True(t, deactivated)

	deactivated, err = store.RemoveFurniture(ctx, unsold.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)

	forSale, err := store.ListFurniture(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, forSale)

	all, err := store.ListFurniture(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, sold.ID, all[0].ID)
	assert.False(t, all[0].IsForSale)
}

func TestCustomers_EmailIsCaseInsensitiveAndUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := seedCustomer(t, store, "Jane@Example.com")

	got, err := store.GetCustomerByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	err = store.CreateCustomer(ctx, &commerce.Customer{Name: "Dup", Email: "JANE@example.com"})
	assert.ErrorIs(t, err, sqlite.ErrDuplicateEmail)

	_, err = store.GetCustomer(ctx, 999)
	assert.ErrorIs(t, err, commerce.ErrCustomerNotFound)
}

// =============================================================================
// RECONCILIATION RUN TESTS
// =============================================================================

func TestReconciliationRuns_SaveAndUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	run := sqlite.ReconciliationRun{ID: "run-1", Status: "running", StartedAt: started}
	require.NoError(t, store.SaveReconciliationRun(ctx, run))

	done := started.Add(time.Minute)
	run.Status, run.Scanned, run.Migrated, run.CompletedAt = "completed", 3, 2, &done
	require.NoError(t, store.SaveReconciliationRun(ctx, run))

	runs, err := store.ListReconciliationRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, 3, runs[0].Scanned)
	assert.Equal(t, 2, runs[0].Migrated)
	require.NotNil(t, runs[0].CompletedAt)
	assert.True(t, runs[0].CompletedAt.Equal(done))
}
