package aggregate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/pkg/transit/models"
)

// PostgresSource reads aggregation inputs from the epoch tables.
type PostgresSource struct {
	db *db.DB
}

func NewPostgresSource(database *db.DB) *PostgresSource {
	return &PostgresSource{db: database}
}

func (s *PostgresSource) RouteMappings(ctx context.Context, epoch models.Epoch) ([]RouteMappingRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT COALESCE(old_route_id, ''), COALESCE(new_route_id, '')
		FROM feed_route_mapping
		WHERE epoch = $1
	`, string(epoch))
	if err != nil {
		return nil, fmt.Errorf("querying route mappings: %w", err)
	}
	defer rows.Close()

	var out []RouteMappingRow
	for rows.Next() {
		var m RouteMappingRow
		if err := rows.Scan(&m.OldID, &m.NewID); err != nil {
			return nil, fmt.Errorf("scanning route mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresSource) StopTimes(ctx context.Context, epoch models.Epoch) ([]StopTimeRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT trip_id, stop_id, COALESCE(stop_sequence::int, 0),
		       COALESCE(arrival_time, ''), COALESCE(departure_time, '')
		FROM feed_stop_times
		WHERE epoch = $1
		ORDER BY trip_id, stop_sequence::int
	`, string(epoch))
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	var out []StopTimeRow
	for rows.Next() {
		var st StopTimeRow
		if err := rows.Scan(&st.TripID, &st.StopID, &st.Sequence, &st.Arrival, &st.Departure); err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresSource) MasterStopList(ctx context.Context, epoch models.Epoch) ([]SequenceRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT route_id, stop_direction, stop_id, COALESCE(stop_type, 'stop'),
		       COALESCE(stop_sequence::int, 0), COALESCE(timepoint_availability, '')
		FROM feed_master_stop_list
		WHERE epoch = $1
		ORDER BY route_id, stop_direction, stop_sequence::int
	`, string(epoch))
	if err != nil {
		return nil, fmt.Errorf("querying master stop list: %w", err)
	}
	defer rows.Close()

	var out []SequenceRow
	for rows.Next() {
		var (
			row  SequenceRow
			blob string
		)
		if err := rows.Scan(&row.RouteID, &row.Direction, &row.StopID, &row.StopType, &row.Sequence, &blob); err != nil {
			return nil, fmt.Errorf("scanning sequence row: %w", err)
		}
		row.Timepoints = models.DecodeTimepointAvailability(blob)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *PostgresSource) StopInfo(ctx context.Context, epoch models.Epoch, stopIDs []string) (map[string]StopInfoRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT stop_id, COALESCE(stop_name, ''), COALESCE(stop_lat, ''), COALESCE(stop_lon, '')
		FROM feed_stops
		WHERE epoch = $1 AND stop_id = ANY($2)
	`, string(epoch), pq.Array(stopIDs))
	if err != nil {
		return nil, fmt.Errorf("querying stop info: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StopInfoRow)
	for rows.Next() {
		var (
			stopID string
			info   StopInfoRow
		)
		if err := rows.Scan(&stopID, &info.Name, &info.Lat, &info.Lng); err != nil {
			return nil, fmt.Errorf("scanning stop info: %w", err)
		}
		out[stopID] = info
	}
	return out, rows.Err()
}

func (s *PostgresSource) EffectiveDates(ctx context.Context, epoch models.Epoch) (Window, error) {
	var w Window
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT COALESCE(feed_start_date, ''), COALESCE(feed_end_date, '')
		FROM feed_info
		WHERE epoch = $1
		LIMIT 1
	`, string(epoch)).Scan(&w.Start, &w.End)

	if err == sql.ErrNoRows {
		return Window{}, nil
	}
	if err != nil {
		return Window{}, fmt.Errorf("querying effective dates: %w", err)
	}
	return w, nil
}

func (s *PostgresSource) RouteBasics(ctx context.Context) ([]RouteBasicRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT r.route_id, COALESCE(r.title, ''), COALESCE(t.label, '')
		FROM content_routes r
		LEFT JOIN taxonomy_terms t ON t.term_id = r.category_id
		WHERE r.published = true
		ORDER BY r.route_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying route basics: %w", err)
	}
	defer rows.Close()

	var out []RouteBasicRow
	for rows.Next() {
		var r RouteBasicRow
		if err := rows.Scan(&r.RouteID, &r.Title, &r.Category); err != nil {
			return nil, fmt.Errorf("scanning route basic: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Calendar(ctx context.Context, epoch models.Epoch) ([]CalendarRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT service_id, COALESCE(start_date, ''), COALESCE(end_date, '')
		FROM feed_calendar
		WHERE epoch = $1
	`, string(epoch))
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	defer rows.Close()

	var out []CalendarRow
	for rows.Next() {
		var c CalendarRow
		if err := rows.Scan(&c.ServiceID, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("scanning calendar row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresSource) CalendarAttributes(ctx context.Context, epoch models.Epoch) ([]CalendarAttributeRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT service_id, COALESCE(service_description, '')
		FROM feed_calendar_attributes
		WHERE epoch = $1
	`, string(epoch))
	if err != nil {
		return nil, fmt.Errorf("querying calendar attributes: %w", err)
	}
	defer rows.Close()

	var out []CalendarAttributeRow
	for rows.Next() {
		var a CalendarAttributeRow
		if err := rows.Scan(&a.ServiceID, &a.Description); err != nil {
			return nil, fmt.Errorf("scanning calendar attribute: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Trips(ctx context.Context, epoch models.Epoch) ([]TripRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT trip_id, route_id, service_id,
		       COALESCE(direction_id, ''), COALESCE(shape_id, '')
		FROM feed_trips
		WHERE epoch = $1
		ORDER BY service_id, trip_id
	`, string(epoch))
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	var out []TripRow
	for rows.Next() {
		var t TripRow
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.ServiceID, &t.DirectionID, &t.ShapeID); err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Directions(ctx context.Context, epoch models.Epoch) ([]DirectionRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT route_id, COALESCE(direction_id, ''),
		       COALESCE(direction, ''), COALESCE(direction_name, '')
		FROM feed_directions
		WHERE epoch = $1
	`, string(epoch))
	if err != nil {
		return nil, fmt.Errorf("querying directions: %w", err)
	}
	defer rows.Close()

	var out []DirectionRow
	for rows.Next() {
		var d DirectionRow
		if err := rows.Scan(&d.RouteID, &d.DirectionID, &d.Direction, &d.Name); err != nil {
			return nil, fmt.Errorf("scanning direction: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Shapes(ctx context.Context, epoch models.Epoch, shapeIDs []string) ([]ShapeRow, error) {
	if len(shapeIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT shape_id, COALESCE(shape_pt_sequence::int, 0),
		       COALESCE(shape_pt_lat, ''), COALESCE(shape_pt_lon, '')
		FROM feed_shapes
		WHERE epoch = $1 AND shape_id = ANY($2)
		ORDER BY shape_id, shape_pt_sequence::int
	`, string(epoch), pq.Array(shapeIDs))
	if err != nil {
		return nil, fmt.Errorf("querying shapes: %w", err)
	}
	defer rows.Close()

	var out []ShapeRow
	for rows.Next() {
		var sp ShapeRow
		if err := rows.Scan(&sp.ShapeID, &sp.Sequence, &sp.Lat, &sp.Lng); err != nil {
			return nil, fmt.Errorf("scanning shape point: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
