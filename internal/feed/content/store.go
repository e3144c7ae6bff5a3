package content

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/internal/feed/extract"
	"github.com/vtatransit-data/pkg/transit/models"
)

// Lifecycle statuses for route and station content.
const (
	StatusNew          = "new"
	StatusActive       = "active"
	StatusDiscontinued = "discontinued"
	StatusInactive     = "inactive"
)

// Vocabulary for route categories.
const routeCategoryVocabulary = "route_category"

// Store reconciles mapped entity records against durable route and
// station content, and owns the supporting vocabularies (taxonomy
// terms, redirects, tracking records).
type Store struct {
	db     *db.DB
	logger logger.Logger
}

func NewStore(database *db.DB, log logger.Logger) *Store {
	return &Store{db: database, logger: log}
}

// ApplyRoute matches a mapped route record by route_id and creates or
// updates the content row. Only current-epoch batches mutate live
// content; an upcoming batch touches nothing but the tracking record.
func (s *Store) ApplyRoute(ctx context.Context, record extract.Row, epoch models.Epoch) error {
	routeID := record["route_id"]
	if routeID == "" {
		return nil
	}

	categoryID, err := s.GetOrCreateTerm(ctx, routeCategoryVocabulary, record["route_category"])
	if err != nil {
		return err
	}

	exists, err := s.routeExists(ctx, routeID)
	if err != nil {
		return err
	}

	switch {
	case !exists:
		if err := s.createRoute(ctx, routeID, record, categoryID); err != nil {
			return err
		}
	case epoch == models.EpochCurrent:
		if err := s.updateRoute(ctx, routeID, record, categoryID); err != nil {
			return err
		}
	}

	if record["route_url"] != "" {
		if err := s.ensureRedirect(ctx, record["route_url"], routeID); err != nil {
			return err
		}
	}

	return s.UpsertTracking(ctx, routeID, epoch)
}

func (s *Store) routeExists(ctx context.Context, routeID string) (bool, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT count(*) FROM content_routes WHERE route_id = $1`, routeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("matching route %s: %w", routeID, err)
	}
	return n > 0, nil
}

func (s *Store) createRoute(ctx context.Context, routeID string, record extract.Row, categoryID sql.NullInt64) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO content_routes
			(route_id, title, short_name, long_name, description, category_id,
			 url, color, text_color, sort_order, extended_category,
			 status, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, now(), now())
	`,
		routeID,
		record["title"],
		nullIfEmpty(record["route_short_name"]),
		nullIfEmpty(record["route_long_name"]),
		nullIfEmpty(record["description"]),
		categoryID,
		nullIfEmpty(record["route_url"]),
		nullIfEmpty(record["route_color"]),
		nullIfEmpty(record["route_text_color"]),
		nullIfEmpty(record["route_sort_order"]),
		nullIfEmpty(record["extended_route_category"]),
		StatusNew,
	)
	if err != nil {
		return fmt.Errorf("creating route %s: %w", routeID, err)
	}

	s.logger.Info("Route created", "route_id", routeID, "status", StatusNew)
	return nil
}

func (s *Store) updateRoute(ctx context.Context, routeID string, record extract.Row, categoryID sql.NullInt64) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		UPDATE content_routes
		SET title = $2, short_name = $3, long_name = $4, description = $5,
		    category_id = $6, url = $7, color = $8, text_color = $9,
		    sort_order = $10, extended_category = $11,
		    status = $12, published = true, updated_at = now()
		WHERE route_id = $1
	`,
		routeID,
		record["title"],
		nullIfEmpty(record["route_short_name"]),
		nullIfEmpty(record["route_long_name"]),
		nullIfEmpty(record["description"]),
		categoryID,
		nullIfEmpty(record["route_url"]),
		nullIfEmpty(record["route_color"]),
		nullIfEmpty(record["route_text_color"]),
		nullIfEmpty(record["route_sort_order"]),
		nullIfEmpty(record["extended_route_category"]),
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("updating route %s: %w", routeID, err)
	}
	return nil
}

// ApplyStation matches a mapped station record by stop_id. Stations
// keep their title once created; only the description and coordinates
// follow the feed afterwards.
func (s *Store) ApplyStation(ctx context.Context, record extract.Row, epoch models.Epoch) error {
	stopID := record["stop_id"]
	if stopID == "" {
		return nil
	}

	exists, err := s.stationExists(ctx, stopID)
	if err != nil {
		return err
	}

	switch {
	case !exists:
		children, routes, err := s.stationRelations(ctx, stopID)
		if err != nil {
			return err
		}

		_, err = s.db.Conn().ExecContext(ctx, `
			INSERT INTO content_stations
				(stop_id, title, description, lat, lng, child_stops,
				 related_routes, status, published, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, now(), now())
		`,
			stopID,
			record["title"],
			nullIfEmpty(record["description"]),
			nullIfEmpty(record["lat"]),
			nullIfEmpty(record["lng"]),
			pq.Array(children),
			pq.Array(routes),
			StatusNew,
		)
		if err != nil {
			return fmt.Errorf("creating station %s: %w", stopID, err)
		}
		s.logger.Info("Station created", "stop_id", stopID, "child_stops", len(children))

	case epoch == models.EpochCurrent:
		// title deliberately left alone post-creation
		_, err = s.db.Conn().ExecContext(ctx, `
			UPDATE content_stations
			SET description = $2, lat = $3, lng = $4,
			    status = $5, published = true, updated_at = now()
			WHERE stop_id = $1
		`,
			stopID,
			nullIfEmpty(record["description"]),
			nullIfEmpty(record["lat"]),
			nullIfEmpty(record["lng"]),
			StatusActive,
		)
		if err != nil {
			return fmt.Errorf("updating station %s: %w", stopID, err)
		}
	}

	return nil
}

func (s *Store) stationExists(ctx context.Context, stopID string) (bool, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT count(*) FROM content_stations WHERE stop_id = $1`, stopID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("matching station %s: %w", stopID, err)
	}
	return n > 0, nil
}

// stationRelations resolves the child stops referencing this station
// as their parent, and the routes serving those stops according to the
// prior cycle's per-stop route index.
func (s *Store) stationRelations(ctx context.Context, stopID string) (children []string, routes []string, err error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT stop_id FROM feed_stops
		WHERE epoch = $1 AND parent_station = $2
		ORDER BY stop_id
	`, string(models.EpochCurrent), stopID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving child stops for %s: %w", stopID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, nil, fmt.Errorf("scanning child stop: %w", err)
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if len(children) == 0 {
		return nil, nil, nil
	}

	routeRows, err := s.db.Conn().QueryContext(ctx, `
		SELECT DISTINCT route_id FROM stop_routes
		WHERE stop_id = ANY($1)
		ORDER BY route_id
	`, pq.Array(children))
	if err != nil {
		return nil, nil, fmt.Errorf("resolving routes for %s: %w", stopID, err)
	}
	defer routeRows.Close()

	for routeRows.Next() {
		var route string
		if err := routeRows.Scan(&route); err != nil {
			return nil, nil, fmt.Errorf("scanning related route: %w", err)
		}
		routes = append(routes, route)
	}
	return children, routes, routeRows.Err()
}

// GetOrCreateTerm resolves a label inside a controlled vocabulary,
// creating the term on first sight. Idempotent by (vocabulary, label).
func (s *Store) GetOrCreateTerm(ctx context.Context, vocabulary, label string) (sql.NullInt64, error) {
	if label == "" {
		return sql.NullInt64{}, nil
	}

	var termID int64
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT term_id FROM taxonomy_terms
		WHERE vocabulary = $1 AND label = $2
	`, vocabulary, label).Scan(&termID)

	if err == sql.ErrNoRows {
		err = s.db.Conn().QueryRowContext(ctx, `
			INSERT INTO taxonomy_terms (vocabulary, label)
			VALUES ($1, $2)
			ON CONFLICT (vocabulary, label) DO UPDATE SET label = EXCLUDED.label
			RETURNING term_id
		`, vocabulary, label).Scan(&termID)
	}
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("resolving term %q in %s: %w", label, vocabulary, err)
	}

	return sql.NullInt64{Int64: termID, Valid: true}, nil
}

// ensureRedirect provisions a redirect from the route URL's legacy
// path to the canonical route page, once per distinct normalized path.
func (s *Store) ensureRedirect(ctx context.Context, rawURL, routeID string) error {
	source := legacyPath(rawURL)
	if source == "" {
		return nil
	}

	var n int
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT count(*) FROM redirects WHERE source_path = $1`, source).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking redirect %s: %w", source, err)
	}
	if n > 0 {
		return nil
	}

	target := "/routes/" + strings.ToLower(strings.ReplaceAll(routeID, " ", "-"))
	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO redirects (source_path, target_path, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source_path) DO NOTHING
	`, source, target)
	if err != nil {
		return fmt.Errorf("creating redirect %s: %w", source, err)
	}

	s.logger.Debug("Redirect provisioned", "source", source, "target", target)
	return nil
}

// legacyPath derives the normalized legacy path from a route URL:
// the URL path, lower-cased, trailing slash dropped.
func legacyPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Path), "/")
}

// UpsertTracking records the epoch a route was last seen in. This is
// the only signal lifecycle classification consumes.
func (s *Store) UpsertTracking(ctx context.Context, routeID string, epoch models.Epoch) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO route_tracking (route_id, epoch, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (route_id) DO UPDATE
		SET epoch = EXCLUDED.epoch, updated_at = EXCLUDED.updated_at
	`, routeID, string(epoch))
	if err != nil {
		return fmt.Errorf("upserting tracking for %s: %w", routeID, err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
