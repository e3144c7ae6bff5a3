// Package maintenance prunes the import pipeline's accumulated state:
// finished cycle audit rows past their retention and queue items
// abandoned by crashed workers. It runs piggybacked on the import
// cycle rather than on its own schedule.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/internal/common/logger"
)

// DefaultRetention is how long finished cycle records are kept when no
// explicit retention is configured.
const DefaultRetention = 30 * 24 * time.Hour

// minKeepCycles is the floor of audit history retained regardless of
// age, so the resume-from-last-step logic always has something to read.
const minKeepCycles = 10

// Maintenance handles pruning of pipeline bookkeeping tables.
type Maintenance struct {
	db        *db.DB
	logger    logger.Logger
	retention time.Duration
}

// New creates a Maintenance with the given retention; zero or negative
// retention falls back to the default.
func New(database *db.DB, retention time.Duration, log logger.Logger) *Maintenance {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Maintenance{db: database, logger: log, retention: retention}
}

// Run executes every prune pass, logging totals. Failures are reported
// but pruning is best-effort; a failed prune never fails the cycle that
// triggered it.
func (m *Maintenance) Run(ctx context.Context) error {
	cycles, err := m.PruneCycleHistory(ctx)
	if err != nil {
		return err
	}
	items, err := m.PruneAbandonedQueueItems(ctx)
	if err != nil {
		return err
	}

	if cycles > 0 || items > 0 {
		m.logger.Info("Maintenance pass complete", "cycle_rows", cycles, "queue_items", items)
	}
	return nil
}

// PruneCycleHistory deletes finished cycles older than the retention,
// always keeping the most recent minKeepCycles regardless of age. Step
// verdicts go first so the foreign key holds.
func (m *Maintenance) PruneCycleHistory(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-m.retention)

	result, err := m.db.Conn().ExecContext(ctx, `
		DELETE FROM import_cycle_steps
		WHERE cycle_id IN (
			SELECT cycle_id FROM import_cycles
			WHERE finished_at IS NOT NULL AND finished_at < $1
			  AND cycle_id NOT IN (
				SELECT cycle_id FROM import_cycles
				ORDER BY started_at DESC
				LIMIT $2
			  )
		)
	`, cutoff, minKeepCycles)
	if err != nil {
		return 0, fmt.Errorf("pruning cycle steps: %w", err)
	}
	steps, _ := result.RowsAffected()

	result, err = m.db.Conn().ExecContext(ctx, `
		DELETE FROM import_cycles
		WHERE finished_at IS NOT NULL AND finished_at < $1
		  AND cycle_id NOT IN (
			SELECT cycle_id FROM import_cycles
			ORDER BY started_at DESC
			LIMIT $2
		  )
	`, cutoff, minKeepCycles)
	if err != nil {
		return steps, fmt.Errorf("pruning cycles: %w", err)
	}
	cycles, _ := result.RowsAffected()

	return steps + cycles, nil
}

// PruneAbandonedQueueItems deletes queue items older than the retention.
// The queues drain to empty every healthy cycle, so anything that old is
// a claim left behind by a worker that never came back.
func (m *Maintenance) PruneAbandonedQueueItems(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-m.retention)

	result, err := m.db.Conn().ExecContext(ctx, `
		DELETE FROM import_queue
		WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning queue items: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
