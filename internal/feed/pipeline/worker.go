package pipeline

import (
	"context"
	"errors"

	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/internal/feed/queue"
)

// ErrRetry marks a condition worth redelivering the item for (a
// temporarily unavailable collaborator, not a bad batch). Anything else
// is logged and the batch dropped; retries are batch-grained and there
// is no poison queue.
var ErrRetry = errors.New("retry later")

// DrainGet processes the get queue to empty: one item to completion
// per claim.
func DrainGet(ctx context.Context, q *queue.Queue, producer *Producer, log logger.Logger) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		item, err := q.Claim(ctx)
		if err != nil {
			return processed, err
		}
		if item == nil {
			return processed, nil
		}

		payload, err := UnmarshalGetPayload(item.Payload)
		if err != nil {
			log.Error("Dropping malformed get item", "item_id", item.ID, "error", err)
			if err := q.Delete(ctx, item.ID); err != nil {
				return processed, err
			}
			continue
		}

		if err := producer.Process(ctx, payload); err != nil {
			if errors.Is(err, ErrRetry) {
				log.Warn("Releasing get item for redelivery", "item_id", item.ID, "key", payload.Key)
				if err := q.Release(ctx, item.ID); err != nil {
					return processed, err
				}
				continue
			}
			log.Error("Dropping failed get item", "item_id", item.ID, "key", payload.Key, "error", err)
		}

		if err := q.Delete(ctx, item.ID); err != nil {
			return processed, err
		}
		processed++
	}
}

// DrainSave processes the save queue to empty.
func DrainSave(ctx context.Context, q *queue.Queue, applier *Applier, log logger.Logger) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		item, err := q.Claim(ctx)
		if err != nil {
			return processed, err
		}
		if item == nil {
			return processed, nil
		}

		payload, err := UnmarshalSavePayload(item.Payload)
		if err != nil {
			log.Error("Dropping malformed save item", "item_id", item.ID, "error", err)
			if err := q.Delete(ctx, item.ID); err != nil {
				return processed, err
			}
			continue
		}

		if err := applier.Process(ctx, payload); err != nil {
			if errors.Is(err, ErrRetry) {
				log.Warn("Releasing save item for redelivery", "item_id", item.ID, "key", payload.Key)
				if err := q.Release(ctx, item.ID); err != nil {
					return processed, err
				}
				continue
			}
			log.Error("Dropping failed save batch", "item_id", item.ID, "key", payload.Key, "error", err)
		}

		if err := q.Delete(ctx, item.ID); err != nil {
			return processed, err
		}
		processed++
	}
}
