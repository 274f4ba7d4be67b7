package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

// ReconciliationRun records one pass of the cached order matcher.
type ReconciliationRun struct {
	ID              string
	Status          string // running, completed, failed
	Scanned         int
	Migrated        int
	AlreadyMigrated int
	Skipped         int
	Error           string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// SaveReconciliationRun inserts or updates a run.
func (s *Store) SaveReconciliationRun(ctx context.Context, r ReconciliationRun) error {
	query := `
		INSERT INTO reconciliation_runs (id, status, scanned, migrated, already_migrated,
			skipped, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			scanned = excluded.scanned,
			migrated = excluded.migrated,
			already_migrated = excluded.already_migrated,
			skipped = excluded.skipped,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		s := formatTime(*r.CompletedAt)
		completedAt = &s
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Status, r.Scanned, r.Migrated, r.AlreadyMigrated, r.Skipped, r.Error,
		formatTime(r.StartedAt), completedAt,
	)
	return err
}

// ListReconciliationRuns returns the most recent runs first.
func (s *Store) ListReconciliationRuns(ctx context.Context, limit int) ([]ReconciliationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, scanned, migrated, already_migrated, skipped, error, started_at, completed_at
		FROM reconciliation_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []ReconciliationRun{}
	for rows.Next() {
		var (
			r           ReconciliationRun
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Status, &r.Scanned, &r.Migrated, &r.AlreadyMigrated,
			&r.Skipped, &r.Error, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
