package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/resale-engine/reconcile"
	"github.com/warp/resale-engine/store/sqlite"
)

type fakeMigrator struct {
	calls  atomic.Int32
	report reconcile.Report
	err    error
}

func (f *fakeMigrator) MigrateAll(context.Context) (reconcile.Report, error) {
	f.calls.Add(1)
	return f.report, f.err
}

func newScheduler(t *testing.T, m Migrator) (*ReconciliationScheduler, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewReconciliationScheduler(store, m, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	// GIVEN: A scheduler with a short interval
	m := &fakeMigrator{report: reconcile.Report{Scanned: 2, AlreadyMigrated: 2}}
	rs, store := newScheduler(t, m)
	rs.CheckInterval = 10 * time.Millisecond

	// WHEN: Started and left running briefly
	rs.Start()
	require.Eventually(t, func() bool { return m.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	rs.Stop()

	// THEN: Every pass was recorded as completed
	runs, err := store.ListReconciliationRuns(context.Background(), 100)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	for _, r := range runs {
		assert.Equal(t, RunStatusCompleted, r.Status)
		assert.Equal(t, 2, r.AlreadyMigrated)
	}

	// Stop is idempotent.
	rs.Stop()
}

func TestScheduler_DisabledDoesNotRun(t *testing.T) {
	m := &fakeMigrator{}
	rs, _ := newScheduler(t, m)
	rs.Enabled = false

	rs.Start()
	rs.Stop()

	assert.Zero(t, m.calls.Load())
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	// GIVEN: A migrator that cannot list the cache
	m := &fakeMigrator{err: errors.New("cache unreachable")}
	rs, store := newScheduler(t, m)

	// WHEN: Running a pass
	run, _, err := rs.RunNow(context.Background())

	// THEN: The error surfaces and the run is stored as failed
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)

	runs, err := store.ListReconciliationRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, "cache unreachable", runs[0].Error)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestScheduler_NextRunTimeFollowsLoop(t *testing.T) {
	// GIVEN: A scheduler that has not been started
	m := &fakeMigrator{}
	rs, _ := newScheduler(t, m)
	rs.CheckInterval = time.Hour

	_, ok := rs.GetNextRunTime()
	assert.False(t, ok)

	// WHEN: Started
	before := time.Now()
	rs.Start()
	next, ok := rs.GetNextRunTime()
	rs.Stop()

	// THEN: The next pass is one interval after the loop began, and stopping
	//       clears it
	require.True(t, ok)
	assert.False(t, next.Before(before.Add(time.Hour)))
	assert.False(t, next.After(time.Now().Add(time.Hour)))

	_, ok = rs.GetNextRunTime()
	assert.False(t, ok)
}
