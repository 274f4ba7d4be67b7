/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Periodically migrates cached orders into the transaction store so that
  checkouts which were only recorded client-side (store outage, lost
  response) eventually show up in stock and sales records.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass calls Matcher.MigrateAll; the matcher itself is idempotent
  - Passes never overlap (manual RunNow waits for a running pass)
  - Records reconciliation runs for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to check (default: 5 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(store, matcher, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ProcessReconciliation endpoint (manual reconciliation)
  - reconcile/matcher.go: The migration itself
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/warp/resale-engine/reconcile"
	"github.com/warp/resale-engine/store/sqlite"
)

// Run statuses stored in reconciliation_runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Migrator runs a full reconciliation pass. *reconcile.Matcher satisfies it.
type Migrator interface {
	MigrateAll(ctx context.Context) (reconcile.Report, error)
}

// ReconciliationScheduler handles automated cached order migration.
type ReconciliationScheduler struct {
	Store         *sqlite.Store
	Matcher       Migrator
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex

	// lastTick is the unix nano time the current interval started, zero
	// while the loop is not running.
	lastTick atomic.Int64
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(store *sqlite.Store, matcher Migrator, logger *slog.Logger) *ReconciliationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconciliationScheduler{
		Store:         store,
		Matcher:       matcher,
		Logger:        logger,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("reconciliation scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.lastTick.Store(time.Now().UnixNano())
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.Info("reconciliation scheduler started", "interval", rs.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.lastTick.Store(0)
		rs.Logger.Info("reconciliation scheduler stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-rs.stop
		cancel()
	}()

	// Run immediately on start
	rs.pass(ctx)

	for {
		select {
		case t := <-rs.ticker.C:
			rs.lastTick.Store(t.UnixNano())
			rs.pass(ctx)
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReconciliationScheduler) pass(ctx context.Context) {
	if _, _, err := rs.RunNow(ctx); err != nil {
		rs.Logger.ErrorContext(ctx, "scheduled reconciliation failed", "error", err)
	}
}

// RunNow performs one pass immediately and records it. The returned run is
// the final stored record, whether the pass completed or failed.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) (sqlite.ReconciliationRun, reconcile.Report, error) {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	run := sqlite.ReconciliationRun{
		ID:        uuid.NewString(),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := rs.Store.SaveReconciliationRun(ctx, run); err != nil {
		return run, reconcile.Report{}, fmt.Errorf("failed to save run record: %w", err)
	}

	report, err := rs.Matcher.MigrateAll(ctx)
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Scanned = report.Scanned
	run.Migrated = report.Migrated
	run.AlreadyMigrated = report.AlreadyMigrated
	run.Skipped = len(report.Skipped)
	run.Status = RunStatusCompleted
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	}

	// The pass may have been cancelled; the record is still written.
	if saveErr := rs.Store.SaveReconciliationRun(context.WithoutCancel(ctx), run); saveErr != nil {
		return run, report, fmt.Errorf("failed to update run record: %w", saveErr)
	}
	if err != nil {
		return run, report, err
	}

	if report.Migrated > 0 || len(report.Skipped) > 0 {
		rs.Logger.InfoContext(ctx, "reconciliation run recorded",
			"run_id", run.ID, "migrated", report.Migrated, "skipped", len(report.Skipped))
	}
	return run, report, nil
}

// GetNextRunTime returns when the next scheduled pass will start. ok is false
// when the scheduler is not running.
func (rs *ReconciliationScheduler) GetNextRunTime() (next time.Time, ok bool) {
	last := rs.lastTick.Load()
	if last == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, last).Add(rs.CheckInterval).UTC(), true
}
