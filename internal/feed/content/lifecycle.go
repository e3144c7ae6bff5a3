package content

import (
	"context"
	"fmt"
	"time"

	"github.com/vtatransit-data/pkg/transit/models"
)

// staleAfter is how long a current-epoch tracking record may go
// unrefreshed before the route is considered gone rather than merely
// discontinued.
const staleAfter = 24 * time.Hour

// Classify decides a route's lifecycle from its tracking record alone.
// lastEpoch is the epoch the route was last imported under, age is the
// time since that import, and inCurrentSchedule reports whether the
// route appears in the current epoch's schedule status.
func Classify(lastEpoch models.Epoch, age time.Duration, inCurrentSchedule bool) (status string, published bool) {
	if lastEpoch == models.EpochCurrent {
		if age > staleAfter {
			return StatusInactive, false
		}
		return StatusDiscontinued, true
	}

	// last seen in the upcoming feed only
	if inCurrentSchedule {
		return StatusActive, true
	}
	return StatusNew, true
}

// CheckLifecycles reclassifies every tracked route and writes the
// verdict back to the content row. Runs once per cycle after the
// queues drain.
func (s *Store) CheckLifecycles(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT t.route_id, t.epoch, t.updated_at,
		       EXISTS (
		           SELECT 1 FROM route_schedules rs
		           WHERE rs.route_id = t.route_id AND rs.epoch = $1
		       ) AS in_current
		FROM route_tracking t
	`, string(models.EpochCurrent))
	if err != nil {
		return 0, fmt.Errorf("querying tracking records: %w", err)
	}
	defer rows.Close()

	type verdict struct {
		routeID   string
		status    string
		published bool
	}
	var verdicts []verdict

	for rows.Next() {
		var (
			routeID   string
			epoch     string
			updatedAt time.Time
			inCurrent bool
		)
		if err := rows.Scan(&routeID, &epoch, &updatedAt, &inCurrent); err != nil {
			return 0, fmt.Errorf("scanning tracking record: %w", err)
		}

		lastEpoch, err := models.ParseEpoch(epoch)
		if err != nil {
			s.logger.Warn("Skipping tracking record with bad epoch", "route_id", routeID, "epoch", epoch)
			continue
		}

		status, published := Classify(lastEpoch, now.Sub(updatedAt), inCurrent)
		verdicts = append(verdicts, verdict{routeID: routeID, status: status, published: published})
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	changed := 0
	for _, v := range verdicts {
		result, err := s.db.Conn().ExecContext(ctx, `
			UPDATE content_routes
			SET status = $2, published = $3, updated_at = now()
			WHERE route_id = $1 AND (status <> $2 OR published <> $3)
		`, v.routeID, v.status, v.published)
		if err != nil {
			return changed, fmt.Errorf("reclassifying route %s: %w", v.routeID, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			changed++
			s.logger.Info("Route lifecycle changed", "route_id", v.routeID, "status", v.status, "published", v.published)
		}
	}

	return changed, nil
}
