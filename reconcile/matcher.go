package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/warp/resale-engine/commerce"
)

// SkipReason explains why a cached order was not migrated.
type SkipReason string

const (
	SkipUnknownCustomer      SkipReason = "unknown_customer"
	SkipDuplicateCheckFailed SkipReason = "duplicate_check_failed"
	SkipCreateFailed         SkipReason = "create_failed"
	SkipInvalidOrder         SkipReason = "invalid_order"
	SkipCacheReadFailed      SkipReason = "cache_read_failed"
)

// Skip records one cached order (or email) that was left alone.
type Skip struct {
	Email  string     `json:"email"`
	Ref    string     `json:"ref,omitempty"`
	Reason SkipReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

// Report summarizes a migration pass.
type Report struct {
	Emails          int    `json:"emails"`
	Scanned         int    `json:"scanned"`
	Migrated        int    `json:"migrated"`
	AlreadyMigrated int    `json:"alreadyMigrated"`
	Pruned          int    `json:"pruned"`
	Skipped         []Skip `json:"skipped"`
}

func (r *Report) add(o Report) {
	r.Emails += o.Emails
	r.Scanned += o.Scanned
	r.Migrated += o.Migrated
	r.AlreadyMigrated += o.AlreadyMigrated
	r.Pruned += o.Pruned
	r.Skipped = append(r.Skipped, o.Skipped...)
}

func (r *Report) skip(email, ref string, reason SkipReason, err error) {
	s := Skip{Email: email, Ref: ref, Reason: reason}
	if err != nil {
		s.Error = err.Error()
	}
	r.Skipped = append(r.Skipped, s)
	ordersReconciled.WithLabelValues(string(reason)).Inc()
}

// Placer records migrated sales. *commerce.OrderService satisfies it.
type Placer interface {
	CreateTransaction(ctx context.Context, in commerce.CreateTransactionInput) (*commerce.Transaction, error)
}

// Config wires a Matcher.
type Config struct {
	Store  commerce.Store
	Orders Placer
	Cache  commerce.OrderCache
	Logger *slog.Logger

	// Concurrency bounds how many emails MigrateAll processes at once.
	Concurrency int

	// Prune removes cached orders once they are confirmed in the store.
	Prune bool
}

// Matcher migrates cached orders into the transaction store.
type Matcher struct {
	cfg    Config
	flight singleflight.Group
}

// New creates a matcher.
func New(cfg Config) *Matcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Matcher{cfg: cfg}
}

// MigrateAll runs MigrateCustomer for every email in the cache. A failure for
// one email is recorded in the report and never stops the others.
func (m *Matcher) MigrateAll(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	emails, err := m.cfg.Cache.Emails(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing cached order emails: %w", err)
	}

	var (
		mu    sync.Mutex
		total Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, email := range emails {
		email := email
		g.Go(func() error {
			r, err := m.MigrateCustomer(gctx, email)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				total.skip(email, "", SkipCacheReadFailed, err)
				return nil
			}
			total.add(r)
			return nil
		})
	}
	_ = g.Wait()

	m.cfg.Logger.InfoContext(ctx, "reconciliation pass complete",
		"emails", total.Emails, "scanned", total.Scanned, "migrated", total.Migrated,
		"already_migrated", total.AlreadyMigrated, "skipped", len(total.Skipped))
	return total, ctx.Err()
}

// MigrateCustomer migrates one customer's cached orders. Concurrent calls for
// the same email share a single run.
func (m *Matcher) MigrateCustomer(ctx context.Context, email string) (Report, error) {
	v, err, _ := m.flight.Do(email, func() (any, error) {
		return m.migrateCustomer(ctx, email)
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (m *Matcher) migrateCustomer(ctx context.Context, email string) (Report, error) {
	log := m.cfg.Logger.With("email", email)

	orders, err := m.cfg.Cache.ListByEmail(ctx, email)
	if err != nil {
		return Report{}, fmt.Errorf("reading cached orders: %w", err)
	}
	report := Report{Emails: 1, Scanned: len(orders)}
	if len(orders) == 0 {
		return report, nil
	}

	skipAll := func(reason SkipReason, err error) (Report, error) {
		for _, o := range orders {
			report.skip(email, o.Ref(), reason, err)
		}
		return report, nil
	}

	customer, err := m.cfg.Store.GetCustomerByEmail(ctx, email)
	if errors.Is(err, commerce.ErrCustomerNotFound) {
		log.WarnContext(ctx, "cached orders for unknown customer left in cache", "orders", len(orders))
		return skipAll(SkipUnknownCustomer, nil)
	}
	if err != nil {
		log.WarnContext(ctx, "customer lookup failed, skipping", "error", err)
		return skipAll(SkipDuplicateCheckFailed, err)
	}

	existing, err := m.cfg.Store.ListTransactionsByCustomer(ctx, customer.ID)
	if err != nil {
		log.WarnContext(ctx, "duplicate check failed, skipping", "error", err)
		return skipAll(SkipDuplicateCheckFailed, err)
	}
	known := make([]Signature, 0, len(existing)+len(orders))
	for _, tx := range existing {
		known = append(known, OfTransaction(tx))
	}

	confirmed := func(o commerce.CachedOrder) {
		if !m.cfg.Prune {
			return
		}
		if err := m.cfg.Cache.Remove(ctx, email, o.Ref()); err != nil {
			log.WarnContext(ctx, "failed to prune cached order", "ref", o.Ref(), "error", err)
			return
		}
		report.Pruned++
	}
	already := func(o commerce.CachedOrder) {
		report.AlreadyMigrated++
		ordersReconciled.WithLabelValues("already_migrated").Inc()
		confirmed(o)
	}

	for _, o := range orders {
		if len(o.Items) == 0 || !o.Total.IsPositive() {
			report.skip(email, o.Ref(), SkipInvalidOrder, nil)
			continue
		}

		if o.Key != "" {
			_, err := m.cfg.Store.GetTransactionByIdempotencyKey(ctx, o.Key)
			if err == nil {
				already(o)
				continue
			}
			if !errors.Is(err, commerce.ErrTransactionNotFound) {
				report.skip(email, o.Ref(), SkipDuplicateCheckFailed, err)
				continue
			}
		} else if sig := OfOrder(o); matchesAny(known, sig) {
			already(o)
			continue
		}

		tx, err := m.cfg.Orders.CreateTransaction(ctx, migrationInput(customer.ID, o))
		if errors.Is(err, commerce.ErrDuplicateIdempotencyKey) {
			already(o)
			continue
		}
		if err != nil {
			log.WarnContext(ctx, "cached order migration failed", "ref", o.Ref(), "error", err)
			report.skip(email, o.Ref(), SkipCreateFailed, err)
			continue
		}

		known = append(known, OfTransaction(*tx))
		report.Migrated++
		ordersReconciled.WithLabelValues("migrated").Inc()
		log.InfoContext(ctx, "cached order migrated", "ref", o.Ref(), "transaction_id", tx.ID)
		confirmed(o)
	}

	return report, nil
}

func matchesAny(known []Signature, sig Signature) bool {
	for _, k := range known {
		if k.Matches(sig) {
			return true
		}
	}
	return false
}

// migrationInput builds the transaction for a cached order. A keyed order
// with no transaction under its key never committed here, so its stock has
// not been taken yet and the ledger must decrement it. Key-less orders
// predate the ledger and already left the shelf.
func migrationInput(customer commerce.CustomerID, o commerce.CachedOrder) commerce.CreateTransactionInput {
	items := make([]commerce.LineItemInput, len(o.Items))
	for i, it := range o.Items {
		items[i] = commerce.LineItemInput{FurnitureID: it.FurnitureID, Quantity: it.Quantity, Price: it.Price}
	}
	return commerce.CreateTransactionInput{
		CustomerID:          customer,
		Items:               items,
		TotalAmount:         o.Total,
		PaymentMethod:       o.PaymentMethod,
		ShippingAddress:     o.ShippingAddress,
		SkipInventoryUpdate: o.Key == "",
		IdempotencyKey:      o.Key,
		CreatedAt:           o.Date,
		Source:              commerce.SourceMigration,
	}
}
