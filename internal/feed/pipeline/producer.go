package pipeline

import (
	"context"
	"fmt"

	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/internal/feed/domain"
	"github.com/vtatransit-data/internal/feed/extract"
	"github.com/vtatransit-data/internal/feed/queue"
)

// Producer turns one get-queue item into mapped save-queue batches.
// Parsing runs ahead of the slower persistence side; the batch cap
// bounds each save item's memory.
type Producer struct {
	save      *queue.Queue
	logger    logger.Logger
	batchSize int
}

func NewProducer(save *queue.Queue, log logger.Logger, batchSize int) *Producer {
	if batchSize <= 0 || batchSize > 1000 {
		batchSize = 1000
	}
	return &Producer{
		save:      save,
		logger:    log,
		batchSize: batchSize,
	}
}

// Process reads the referenced extract, maps every row, and enqueues
// batches of at most batchSize records, flushing the final partial
// batch at end-of-file. An unknown domain key yields no batches.
func (p *Producer) Process(ctx context.Context, payload GetPayload) error {
	key := domain.Domain(payload.Key)
	if _, ok := domain.Lookup(key); !ok {
		p.logger.Warn("Dropping item for unknown domain", "key", payload.Key)
		return nil
	}

	rows, err := extract.ReadFile(payload.Path)
	if err != nil {
		return fmt.Errorf("reading extract for %s: %w", payload.Key, err)
	}

	batch := make([]extract.Row, 0, p.batchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		item := SavePayload{
			Key:     payload.Key,
			Records: batch,
			Epoch:   payload.Epoch,
		}
		b, err := item.Marshal()
		if err != nil {
			return err
		}
		if err := p.save.Enqueue(ctx, b); err != nil {
			return err
		}
		total += len(batch)
		batch = make([]extract.Row, 0, p.batchSize)
		return nil
	}

	for _, row := range rows {
		mapped := extract.Map(key, row)
		if len(mapped) == 0 {
			continue
		}
		batch = append(batch, mapped)

		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	p.logger.Info("Extract mapped and batched",
		"key", payload.Key,
		"epoch", payload.Epoch,
		"records", total)
	return nil
}
