package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cycle states. A cycle moves Idle -> Running(step) -> Verified|Failed;
// every step writes a pass/fail verdict row so a later run can resume
// from the last completed step.
const (
	CycleRunning  = "running"
	CycleVerified = "verified"
	CycleFailed   = "failed"
)

// CycleStep names the pipeline stages in execution order.
type CycleStep string

const (
	StepPrepare  CycleStep = "prepare"
	StepPopulate CycleStep = "populate"
	StepProcess  CycleStep = "process"
	StepCheck    CycleStep = "check"
	StepGenerate CycleStep = "generate"
)

// CycleLog persists the import cycle audit trail.
type CycleLog struct {
	db *DB
}

func NewCycleLog(db *DB) *CycleLog {
	return &CycleLog{db: db}
}

// CycleInfo is one audit row.
type CycleInfo struct {
	CycleID    string
	State      string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Journal    sql.NullString
}

// Begin opens a new cycle in the running state and returns its id.
func (cl *CycleLog) Begin(ctx context.Context) (string, error) {
	cycleID := uuid.NewString()

	_, err := cl.db.conn.ExecContext(ctx, `
		INSERT INTO import_cycles (cycle_id, state, started_at)
		VALUES ($1, $2, now())
	`, cycleID, CycleRunning)
	if err != nil {
		return "", fmt.Errorf("beginning cycle: %w", err)
	}

	cl.db.logger.Info("Cycle started", "cycle_id", cycleID)
	return cycleID, nil
}

// RecordStep writes one step verdict. The verdict is the post-hoc
// self-check result, not a transactional guarantee.
func (cl *CycleLog) RecordStep(ctx context.Context, cycleID string, step CycleStep, passed bool, detail string) error {
	_, err := cl.db.conn.ExecContext(ctx, `
		INSERT INTO import_cycle_steps (cycle_id, step, passed, detail, recorded_at)
		VALUES ($1, $2, $3, $4, now())
	`, cycleID, string(step), passed, detail)
	if err != nil {
		return fmt.Errorf("recording step %s: %w", step, err)
	}

	if passed {
		cl.db.logger.Info("Cycle step verified", "cycle_id", cycleID, "step", string(step))
	} else {
		cl.db.logger.Warn("Cycle step failed verification", "cycle_id", cycleID, "step", string(step), "detail", detail)
	}
	return nil
}

// Finish closes the cycle and flushes the accumulated journal in the
// same transaction, so the audit record lands atomically.
func (cl *CycleLog) Finish(ctx context.Context, cycleID string, verified bool, journal string) error {
	state := CycleVerified
	if !verified {
		state = CycleFailed
	}

	tx, err := cl.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE import_cycles
		SET state = $1, finished_at = now(), journal = $2
		WHERE cycle_id = $3 AND state = $4
	`, state, journal, cycleID, CycleRunning)
	if err != nil {
		return fmt.Errorf("finishing cycle: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("cycle %s not running", cycleID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	cl.db.logger.Info("Cycle finished", "cycle_id", cycleID, "state", state)
	return nil
}

// LastCycle returns the most recently started cycle, or nil when none
// exist yet.
func (cl *CycleLog) LastCycle(ctx context.Context) (*CycleInfo, error) {
	var info CycleInfo
	err := cl.db.conn.QueryRowContext(ctx, `
		SELECT cycle_id, state, started_at, finished_at, journal
		FROM import_cycles
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&info.CycleID, &info.State, &info.StartedAt, &info.FinishedAt, &info.Journal)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last cycle: %w", err)
	}
	return &info, nil
}

// CompletedSteps lists the steps that passed for a cycle, for
// resume-from-last-completed-step decisions.
func (cl *CycleLog) CompletedSteps(ctx context.Context, cycleID string) (map[CycleStep]bool, error) {
	rows, err := cl.db.conn.QueryContext(ctx, `
		SELECT step FROM import_cycle_steps
		WHERE cycle_id = $1 AND passed = true
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("querying cycle steps: %w", err)
	}
	defer rows.Close()

	completed := make(map[CycleStep]bool)
	for rows.Next() {
		var step string
		if err := rows.Scan(&step); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		completed[CycleStep(step)] = true
	}
	return completed, rows.Err()
}
