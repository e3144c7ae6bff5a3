// Package server exposes the read side over HTTP: rendered schedule
// matrices, the downloadable artifact, and per-stop next-ride lookups.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vtatransit-data/internal/common/config"
	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/internal/schedule/aggregate"
	"github.com/vtatransit-data/internal/schedule/matrix"
	"github.com/vtatransit-data/pkg/transit/models"
)

// Server serves the rendered schedule views. All routes are read-only
// and safe under concurrent requests; the write side lives in the
// import runner.
type Server struct {
	database  *db.DB
	builder   *matrix.Builder
	artifacts *matrix.ArtifactStore
	logger    logger.Logger

	// models caches decoded schedule blobs briefly; the import cycle
	// replaces them wholesale, so a short TTL is all the invalidation
	// needed.
	models gcache.Cache
}

func New(database *db.DB, settings *config.Settings, log logger.Logger) *Server {
	return &Server{
		database:  database,
		builder:   matrix.NewBuilder(settings.ServiceGapDays),
		artifacts: matrix.NewArtifactStore(settings.ArtifactDir, log),
		logger:    log,
		models: gcache.New(256).
			LRU().
			Expiration(5 * time.Minute).
			Build(),
	}
}

// Router assembles the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/routes/{routeID}/schedule", s.handleSchedule)
	r.Get("/routes/{routeID}/schedule.pdf", s.handleScheduleArtifact)
	r.Get("/stops/{stopID}/next", s.handleNextRides)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.database.Conn().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSchedule renders the matrix for one route. Direction and
// service default to the first available option; epoch defaults to
// current.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	model, status, msg := s.loadModel(r)
	if model == nil {
		writeError(w, status, msg)
		return
	}

	req := s.matrixRequest(r, model)
	m, err := s.builder.Build(model, req)
	if err != nil {
		switch {
		case errors.Is(err, matrix.ErrNoSchedule):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, matrix.ErrUnknownStop):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("Matrix build failed", "route_id", model.RouteID, "error", err)
			writeError(w, http.StatusInternalServerError, "schedule unavailable")
		}
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// handleScheduleArtifact serves the downloadable document, rendering it
// on first request. The switchover purge deletes stale artifacts, so a
// rebuilt one always reflects the live epoch.
func (s *Server) handleScheduleArtifact(w http.ResponseWriter, r *http.Request) {
	model, status, msg := s.loadModel(r)
	if model == nil {
		writeError(w, status, msg)
		return
	}

	req := s.matrixRequest(r, model)
	m, err := s.builder.Build(model, req)
	if err != nil {
		writeError(w, http.StatusNotFound, "schedule unavailable")
		return
	}

	path, err := s.artifacts.Ensure(model.RouteID, models.Epoch(model.Epoch), m)
	if err != nil {
		s.logger.Error("Artifact render failed", "route_id", model.RouteID, "error", err)
		writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

// nextRide is one upcoming departure from a stop.
type nextRide struct {
	RouteID   string `json:"route_id"`
	TripID    string `json:"trip_id"`
	ServiceID string `json:"service_id"`
	Direction string `json:"direction"`
	Time      string `json:"time"`
}

// handleNextRides lists the next departures from a stop in the current
// epoch, soonest first.
func (s *Server) handleNextRides(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	routeFilter := r.URL.Query().Get("route")

	rows, err := s.database.Conn().QueryContext(r.Context(), `
		SELECT route_id, aggregate FROM stop_routes WHERE stop_id = $1
	`, stopID)
	if err != nil {
		s.logger.Error("Next-ride lookup failed", "stop_id", stopID, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	defer rows.Close()

	now := time.Now()
	nowSeconds := now.Hour()*3600 + now.Minute()*60 + now.Second()

	var rides []nextRide
	for rows.Next() {
		var (
			routeID string
			blob    []byte
		)
		if err := rows.Scan(&routeID, &blob); err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if routeFilter != "" && routeFilter != routeID {
			continue
		}

		var services map[string]map[string]aggregate.StopDeparture
		if err := json.Unmarshal(blob, &services); err != nil {
			s.logger.Warn("Skipping undecodable stop aggregate", "stop_id", stopID, "route_id", routeID)
			continue
		}

		for serviceID, trips := range services {
			for tripID, dep := range trips {
				t, err := models.ParseServiceTime(dep.Time)
				if err != nil || t.IsZero() || t.Seconds() < nowSeconds {
					continue
				}
				rides = append(rides, nextRide{
					RouteID:   routeID,
					TripID:    tripID,
					ServiceID: serviceID,
					Direction: dep.Direction,
					Time:      t.Display(),
				})
			}
		}
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	sort.Slice(rides, func(i, j int) bool {
		if rides[i].Time != rides[j].Time {
			return rides[i].Time < rides[j].Time
		}
		return rides[i].TripID < rides[j].TripID
	})
	if len(rides) > 20 {
		rides = rides[:20]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stop_id": stopID,
		"rides":   rides,
	})
}

// loadModel resolves the request's route and epoch to a decoded
// schedule model, going through the short-lived cache.
func (s *Server) loadModel(r *http.Request) (*aggregate.RouteScheduleModel, int, string) {
	routeID := chi.URLParam(r, "routeID")

	epoch, err := models.ParseEpoch(r.URL.Query().Get("epoch"))
	if err != nil {
		if r.URL.Query().Get("epoch") != "" {
			return nil, http.StatusBadRequest, "unknown epoch"
		}
		epoch = models.EpochCurrent
	}

	key := string(epoch) + "/" + routeID
	if cached, err := s.models.Get(key); err == nil {
		if model, ok := cached.(*aggregate.RouteScheduleModel); ok {
			return model, 0, ""
		}
	}

	model, err := s.fetchModel(r.Context(), routeID, epoch)
	if err == sql.ErrNoRows {
		return nil, http.StatusNotFound, "route schedule not found"
	}
	if err != nil {
		s.logger.Error("Schedule fetch failed", "route_id", routeID, "error", err)
		return nil, http.StatusInternalServerError, "schedule unavailable"
	}

	s.models.Set(key, model)
	return model, 0, ""
}

func (s *Server) fetchModel(ctx context.Context, routeID string, epoch models.Epoch) (*aggregate.RouteScheduleModel, error) {
	var blob []byte
	err := s.database.Conn().QueryRowContext(ctx, `
		SELECT model FROM route_schedules
		WHERE epoch = $1 AND route_id = $2
	`, string(epoch), routeID).Scan(&blob)
	if err != nil {
		return nil, err
	}

	var model aggregate.RouteScheduleModel
	if err := json.Unmarshal(blob, &model); err != nil {
		return nil, fmt.Errorf("decoding schedule for %s: %w", routeID, err)
	}
	return &model, nil
}

// matrixRequest fills request defaults from the model: first direction
// and first day-of-service in sorted order.
func (s *Server) matrixRequest(r *http.Request, model *aggregate.RouteScheduleModel) matrix.Request {
	q := r.URL.Query()
	req := matrix.Request{
		Direction:   q.Get("direction"),
		ServiceID:   q.Get("service"),
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
	}

	if req.Direction == "" {
		req.Direction = firstKey(model.Schedule)
	}
	if req.ServiceID == "" {
		keys := make([]string, 0, len(model.DayOfServiceOptions))
		for k := range model.DayOfServiceOptions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			req.ServiceID = keys[0]
		}
	}
	return req
}

func firstKey(m map[string]*aggregate.DirectionSchedule) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
