package aggregate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/pkg/transit/models"
)

// PostgresSink persists aggregation outputs, replacing each
// destination wholesale inside one transaction.
type PostgresSink struct {
	db *db.DB
}

func NewPostgresSink(database *db.DB) *PostgresSink {
	return &PostgresSink{db: database}
}

// TruncateOutputs empties every destination for the epoch up front.
// An aborted pass then leaves truncated-but-empty tables, which is a
// visible failure rather than silent staleness.
func (s *PostgresSink) TruncateOutputs(ctx context.Context, epoch models.Epoch) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM route_schedules WHERE epoch = $1`, string(epoch)); err != nil {
		return fmt.Errorf("truncating route_schedules: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM service_options WHERE epoch = $1`, string(epoch)); err != nil {
		return fmt.Errorf("truncating service_options: %w", err)
	}

	if epoch == models.EpochCurrent {
		for _, table := range []string{"route_index", "next_ride", "stop_routes"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("truncating %s: %w", table, err)
			}
		}
	}

	return tx.Commit()
}

func (s *PostgresSink) ReplaceRouteSchedules(ctx context.Context, epoch models.Epoch, schedules []*RouteScheduleModel) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM route_schedules WHERE epoch = $1`, string(epoch)); err != nil {
		return fmt.Errorf("truncating route_schedules: %w", err)
	}

	for _, model := range schedules {
		blob, err := json.Marshal(model)
		if err != nil {
			return fmt.Errorf("marshaling schedule for %s: %w", model.RouteID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO route_schedules (epoch, route_id, model, generated_at)
			VALUES ($1, $2, $3, now())
		`, string(epoch), model.RouteID, blob); err != nil {
			return fmt.Errorf("inserting schedule for %s: %w", model.RouteID, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresSink) ReplaceRouteIndex(ctx context.Context, index map[string]string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM route_index`); err != nil {
		return fmt.Errorf("truncating route_index: %w", err)
	}

	for routeID, name := range index {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO route_index (route_id, route_name)
			VALUES ($1, $2)
		`, routeID, name); err != nil {
			return fmt.Errorf("inserting route index for %s: %w", routeID, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresSink) ReplaceNextRide(ctx context.Context, projections []*NextRideProjection) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM next_ride`); err != nil {
		return fmt.Errorf("truncating next_ride: %w", err)
	}

	for _, projection := range projections {
		blob, err := json.Marshal(projection)
		if err != nil {
			return fmt.Errorf("marshaling projection for %s: %w", projection.RouteID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO next_ride (route_id, projection)
			VALUES ($1, $2)
		`, projection.RouteID, blob); err != nil {
			return fmt.Errorf("inserting projection for %s: %w", projection.RouteID, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresSink) ReplaceStopAggregates(ctx context.Context, aggregates []*StopAggregate) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stop_routes`); err != nil {
		return fmt.Errorf("truncating stop_routes: %w", err)
	}

	// one row per (stop, route) so the station-relations lookup can
	// index by either side
	for _, agg := range aggregates {
		for routeID, services := range agg.Routes {
			blob, err := json.Marshal(services)
			if err != nil {
				return fmt.Errorf("marshaling aggregate for stop %s: %w", agg.StopID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stop_routes (stop_id, route_id, aggregate)
				VALUES ($1, $2, $3)
			`, agg.StopID, routeID, blob); err != nil {
				return fmt.Errorf("inserting aggregate for stop %s: %w", agg.StopID, err)
			}
		}
	}

	return tx.Commit()
}

func (s *PostgresSink) ReplaceServiceOptions(ctx context.Context, epoch models.Epoch, options []ServiceOptionRow) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM service_options WHERE epoch = $1`, string(epoch)); err != nil {
		return fmt.Errorf("truncating service_options: %w", err)
	}

	for _, opt := range options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO service_options
				(epoch, service_id, parent_id, description, start_date, end_date, interval_days)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, string(epoch), opt.ServiceID, opt.ParentID, opt.Description,
			opt.Window.Start, opt.Window.End, opt.IntervalDays); err != nil {
			return fmt.Errorf("inserting service option %s: %w", opt.ServiceID, err)
		}
	}

	return tx.Commit()
}
