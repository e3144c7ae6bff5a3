package aggregate

import (
	"github.com/vtatransit-data/pkg/transit/models"
)

// SchemaVersion tags every persisted blob so readers can keep decoding
// older cycles after the shape changes.
const SchemaVersion = 1

// RouteScheduleModel is the fully-built nested schedule for one route
// in one epoch. It is persisted as a self-describing JSON blob and
// fully replaced every cycle, never patched.
type RouteScheduleModel struct {
	SchemaVersion int    `json:"schema_version"`
	RouteID       string `json:"route_id"`
	RouteName     string `json:"route_name"`
	Epoch         string `json:"epoch"`

	// DirectionOptions maps direction code (NB, SB, ...) to the
	// rider-facing direction name.
	DirectionOptions map[string]string `json:"direction_options"`

	// DayOfServiceOptions maps parent service id to its description
	// and variant sub-ids.
	DayOfServiceOptions map[string]*ServiceOption `json:"day_of_service_options"`

	// Schedule holds the per-direction trip/service/stop data.
	Schedule map[string]*DirectionSchedule `json:"schedule"`

	// Shapes holds ordered polyline points per direction and shape id.
	Shapes map[string]map[string][]ShapePoint `json:"shapes"`

	ScheduleStatus ScheduleStatus `json:"schedule_status"`
	RouteMapping   RouteMappingInfo `json:"route_mapping"`
	EffectiveDates Window         `json:"effective_dates"`
}

// ServiceOption describes one parent day-of-service grouping.
type ServiceOption struct {
	Description string   `json:"description"`
	Variants    []string `json:"variants,omitempty"`
}

// DirectionSchedule carries everything the renderer needs for one
// direction of travel.
type DirectionSchedule struct {
	// Trips: parent service id -> trip id -> stop id -> recorded time.
	Trips map[string]map[string]map[string]string `json:"trips"`

	// Services: parent service id -> member service id -> metadata.
	Services map[string]map[string]*ServiceMeta `json:"services"`

	// Stops, StopCoordinates and StopSequence are parallel,
	// sequence-ordered lists populated once per direction.
	Stops           []string            `json:"stops"`
	StopCoordinates []Coordinate        `json:"stop_coordinates"`
	StopSequence    []StopSequenceEntry `json:"stop_sequence"`
}

// ServiceMeta aggregates one member service inside a parent grouping.
type ServiceMeta struct {
	Window  Window   `json:"window"`
	IntervalDays int `json:"interval_days"`
	TripIDs []string `json:"trip_ids"`
}

// StopSequenceEntry is one ordered stop in the authoritative helper
// ordering, with its timepoint designation.
type StopSequenceEntry struct {
	StopID       string                       `json:"stop_id"`
	StopType     string                       `json:"stop_type"`
	Timepoints   models.TimepointAvailability `json:"timepoint_availability"`
}

// Coordinate is a stop location.
type Coordinate struct {
	Lat string `json:"lat"`
	Lng string `json:"lng"`
}

// ShapePoint is one ordered polyline vertex.
type ShapePoint struct {
	Lat string `json:"lat"`
	Lng string `json:"lng"`
}

// Window is a date span in feed form (YYYYMMDD).
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ScheduleStatus reports which epochs a route id appears in, according
// to the route mapping helper.
type ScheduleStatus struct {
	Current  bool `json:"current"`
	Upcoming bool `json:"upcoming"`
}

// RouteMappingInfo lists the ids this route maps to/from across the
// epoch boundary. A route with no mapping rows maps to itself.
type RouteMappingInfo struct {
	Current  []string `json:"current"`
	Upcoming []string `json:"upcoming"`
}

// StopAggregate is the per-stop view of the current epoch:
// route -> service -> trip -> departure.
type StopAggregate struct {
	SchemaVersion int                                             `json:"schema_version"`
	StopID        string                                          `json:"stop_id"`
	Routes        map[string]map[string]map[string]StopDeparture `json:"routes"`
}

// StopDeparture is one trip's call at a stop.
type StopDeparture struct {
	Direction string `json:"direction"`
	Time      string `json:"time"`
}

// NextRideProjection is the reduced current-epoch model kept for the
// next-ride lookup: catalogs only, no trip matrix.
type NextRideProjection struct {
	SchemaVersion       int                       `json:"schema_version"`
	RouteID             string                    `json:"route_id"`
	DirectionOptions    map[string]string         `json:"direction_options"`
	DayOfServiceOptions map[string]*ServiceOption `json:"day_of_service_options"`
	StopsByDirection    map[string][]string       `json:"stops_by_direction"`
}

// ServiceOptionRow is one row of the per-epoch service-option catalog.
type ServiceOptionRow struct {
	ServiceID    string
	ParentID     string
	Description  string
	Window       Window
	IntervalDays int
}

// parentServiceID derives the parent grouping for a service id: ids
// longer than one character take their last character as the parent,
// which is how day-type overlays reference their base schedule.
func parentServiceID(serviceID string) string {
	if len(serviceID) > 1 {
		return serviceID[len(serviceID)-1:]
	}
	return serviceID
}
