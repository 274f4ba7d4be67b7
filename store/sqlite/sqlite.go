/*
Package sqlite provides a SQLite-backed implementation of the commerce storage
interfaces.

PURPOSE:
  Implements commerce.TxStore plus the collaborator operations the HTTP layer
  needs (furniture and customer management, reconciliation run history).
  In production the same patterns apply to PostgreSQL with only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  commerce.InventoryStore:   Furniture reads, conditional stock update
  commerce.TransactionStore: Headers and line items
  commerce.CustomerStore:    Customer lookups
  commerce.TxStore:          WithTx for atomic units of work

KEY TABLES:
  customers:          Customer identity (email unique, case-insensitive)
  furniture:          Items and their stock (CHECK quantity >= 0)
  transactions:       Order headers (idempotency_key UNIQUE)
  transaction_items:  Line items (cascade on header delete)
  reconciliation_runs: History of cached order migrations

STOCK UPDATES:
  AdjustStock is one UPDATE ... WHERE quantity + delta >= 0 RETURNING quantity.
  The availability check and the write are the same statement, so concurrent
  checkouts cannot both take the last unit.

CONCURRENCY:
  The pool is limited to one connection. SQLite allows a single writer anyway,
  and ":memory:" databases exist per connection. Inside WithTx every read and
  write goes through the *sql.Tx; calling the parent Store from inside fn
  would block on the pool.

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout) so ORDER BY on the column is
  chronological.

USAGE:
  store, err := sqlite.New("./data/resale.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  orders := commerce.NewOrderService(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - commerce/store.go: Interface definitions
  - commerce/orders.go: The service using this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/resale-engine/commerce"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; it runs against the pool or a transaction.
type queries struct {
	q querier
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ commerce.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS furniture (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		condition TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		is_for_sale INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_furniture_for_sale
		ON furniture(is_for_sale);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		shipping_address TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		source TEXT NOT NULL DEFAULT 'checkout'
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_customer_date
		ON transactions(customer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at
		ON transactions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_status
		ON transactions(status);

	CREATE TABLE IF NOT EXISTS transaction_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id INTEGER NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		furniture_id INTEGER NOT NULL REFERENCES furniture(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price_each TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_items_transaction
		ON transaction_items(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_transaction_items_furniture
		ON transaction_items(furniture_id);

	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		scanned INTEGER NOT NULL DEFAULT 0,
		migrated INTEGER NOT NULL DEFAULT 0,
		already_migrated INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_started
		ON reconciliation_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (commerce.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store commerce.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries{q: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore is the commerce.Store handed to WithTx callbacks.
type txStore struct {
	queries
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
