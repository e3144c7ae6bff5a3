package pipeline

import (
	"context"
	"fmt"

	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/internal/feed/domain"
	"github.com/vtatransit-data/internal/feed/extract"
	"github.com/vtatransit-data/pkg/transit/models"
)

// ContentWriter is the content-store side of the applier: entity
// domains go through match/create/update instead of bulk loads.
type ContentWriter interface {
	ApplyRoute(ctx context.Context, record extract.Row, epoch models.Epoch) error
	ApplyStation(ctx context.Context, record extract.Row, epoch models.Epoch) error
}

// Applier consumes save-queue batches. Entity domains (routes,
// stations) are reconciled through the content store; every other
// domain is truncated once per cycle and bulk-inserted.
type Applier struct {
	db        *db.DB
	content   ContentWriter
	logger    logger.Logger
	batchSize int

	// truncated tracks which (table, epoch) pairs were cleared this
	// cycle, so the truncate happens before the first batch only.
	truncated map[string]bool
}

func NewApplier(database *db.DB, content ContentWriter, log logger.Logger, batchSize int) *Applier {
	if batchSize <= 0 || batchSize > 1000 {
		batchSize = 1000
	}
	return &Applier{
		db:        database,
		content:   content,
		logger:    log,
		batchSize: batchSize,
		truncated: make(map[string]bool),
	}
}

// ResetCycle clears the truncate bookkeeping at the start of a cycle.
func (a *Applier) ResetCycle() {
	a.truncated = make(map[string]bool)
}

// Process persists one batch.
func (a *Applier) Process(ctx context.Context, payload SavePayload) error {
	key := domain.Domain(payload.Key)
	info, ok := domain.Lookup(key)
	if !ok {
		a.logger.Warn("Dropping batch for unknown domain", "key", payload.Key)
		return nil
	}

	epoch, err := models.ParseEpoch(payload.Epoch)
	if err != nil {
		return fmt.Errorf("batch for %s: %w", payload.Key, err)
	}

	if info.Kind == domain.KindEntity {
		return a.applyEntities(ctx, key, payload.Records, epoch)
	}
	return a.applyTable(ctx, info, payload.Records, epoch)
}

func (a *Applier) applyEntities(ctx context.Context, key domain.Domain, records []extract.Row, epoch models.Epoch) error {
	for _, record := range records {
		var err error
		switch key {
		case domain.Routes:
			err = a.content.ApplyRoute(ctx, record, epoch)
		case domain.Stations:
			err = a.content.ApplyStation(ctx, record, epoch)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("applying %s record: %w", key, err)
		}
	}

	a.logger.Debug("Entity batch applied", "key", string(key), "epoch", string(epoch), "records", len(records))
	return nil
}

func (a *Applier) applyTable(ctx context.Context, info domain.Info, records []extract.Row, epoch models.Epoch) error {
	tx, err := a.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	truncateKey := info.Table + "/" + string(epoch)
	if !a.truncated[truncateKey] {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE epoch = $1", info.Table), string(epoch)); err != nil {
			return fmt.Errorf("truncating %s: %w", info.Table, err)
		}
	}

	batch := newBatchInserter(tx, info, string(epoch), a.batchSize)
	for _, record := range records {
		if err := batch.Add(record); err != nil {
			return err
		}
	}
	if err := batch.Flush(); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	// marked only after commit, so a failed first batch truncates again
	a.truncated[truncateKey] = true

	a.logger.Debug("Table batch applied", "table", info.Table, "epoch", string(epoch), "records", len(records))
	return nil
}
