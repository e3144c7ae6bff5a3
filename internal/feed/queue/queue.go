package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vtatransit-data/internal/common/db"
)

// Queue names used by the import pipeline. The get queue carries raw
// extract references, the save queue carries mapped batches.
const (
	GetQueue  = "get"
	SaveQueue = "save"
)

// Item is one claimed queue entry. Payload interpretation is the
// consumer's business.
type Item struct {
	ID      int64
	Payload []byte
}

// Queue is a named durable FIFO over the import_queue table.
// Delivery is at-least-once: a claim takes a lease, and an item that is
// neither deleted nor released comes back after the lease expires.
type Queue struct {
	db    *db.DB
	name  string
	lease time.Duration
}

func New(database *db.DB, name string) *Queue {
	return &Queue{
		db:    database,
		name:  name,
		lease: 15 * time.Minute,
	}
}

// Enqueue appends one item.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) error {
	_, err := q.db.Conn().ExecContext(ctx, `
		INSERT INTO import_queue (queue, payload, created_at)
		VALUES ($1, $2, now())
	`, q.name, payload)
	if err != nil {
		return fmt.Errorf("enqueueing to %s: %w", q.name, err)
	}
	return nil
}

// Claim leases the oldest unclaimed item. Returns nil when the queue is
// empty, which is a legitimate terminal state, not an error.
func (q *Queue) Claim(ctx context.Context) (*Item, error) {
	var item Item
	err := q.db.Conn().QueryRowContext(ctx, `
		UPDATE import_queue
		SET claimed_until = now() + make_interval(secs => $2)
		WHERE item_id = (
			SELECT item_id FROM import_queue
			WHERE queue = $1
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY item_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING item_id, payload
	`, q.name, q.lease.Seconds()).Scan(&item.ID, &item.Payload)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming from %s: %w", q.name, err)
	}
	return &item, nil
}

// Delete removes a processed (or dropped) item.
func (q *Queue) Delete(ctx context.Context, itemID int64) error {
	_, err := q.db.Conn().ExecContext(ctx, `
		DELETE FROM import_queue WHERE item_id = $1
	`, itemID)
	if err != nil {
		return fmt.Errorf("deleting item %d: %w", itemID, err)
	}
	return nil
}

// Release returns a claimed item for redelivery.
func (q *Queue) Release(ctx context.Context, itemID int64) error {
	_, err := q.db.Conn().ExecContext(ctx, `
		UPDATE import_queue SET claimed_until = NULL WHERE item_id = $1
	`, itemID)
	if err != nil {
		return fmt.Errorf("releasing item %d: %w", itemID, err)
	}
	return nil
}

// Len counts the items still in the queue, claimed or not.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.Conn().QueryRowContext(ctx, `
		SELECT count(*) FROM import_queue WHERE queue = $1
	`, q.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", q.name, err)
	}
	return n, nil
}
