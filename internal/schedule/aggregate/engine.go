package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/pkg/transit/models"
)

// Input row shapes, one per upstream extract.

type RouteMappingRow struct {
	OldID string
	NewID string
}

type StopTimeRow struct {
	TripID    string
	StopID    string
	Sequence  int
	Arrival   string
	Departure string
}

type SequenceRow struct {
	RouteID    string
	Direction  string
	StopID     string
	StopType   string
	Sequence   int
	Timepoints models.TimepointAvailability
}

type StopInfoRow struct {
	Name string
	Lat  string
	Lng  string
}

type RouteBasicRow struct {
	RouteID  string
	Title    string
	Category string
}

type CalendarRow struct {
	ServiceID string
	StartDate string
	EndDate   string
}

type CalendarAttributeRow struct {
	ServiceID   string
	Description string
}

type TripRow struct {
	TripID      string
	RouteID     string
	ServiceID   string
	DirectionID string
	ShapeID     string
}

type DirectionRow struct {
	RouteID     string
	DirectionID string
	Direction   string
	Name        string
}

type ShapeRow struct {
	ShapeID  string
	Sequence int
	Lat      string
	Lng      string
}

// Source reads the persisted extracts and content an aggregation pass
// consumes.
type Source interface {
	RouteMappings(ctx context.Context, epoch models.Epoch) ([]RouteMappingRow, error)
	StopTimes(ctx context.Context, epoch models.Epoch) ([]StopTimeRow, error)
	MasterStopList(ctx context.Context, epoch models.Epoch) ([]SequenceRow, error)
	StopInfo(ctx context.Context, epoch models.Epoch, stopIDs []string) (map[string]StopInfoRow, error)
	EffectiveDates(ctx context.Context, epoch models.Epoch) (Window, error)
	RouteBasics(ctx context.Context) ([]RouteBasicRow, error)
	Calendar(ctx context.Context, epoch models.Epoch) ([]CalendarRow, error)
	CalendarAttributes(ctx context.Context, epoch models.Epoch) ([]CalendarAttributeRow, error)
	Trips(ctx context.Context, epoch models.Epoch) ([]TripRow, error)
	Directions(ctx context.Context, epoch models.Epoch) ([]DirectionRow, error)
	Shapes(ctx context.Context, epoch models.Epoch, shapeIDs []string) ([]ShapeRow, error)
}

// Sink persists aggregation outputs. Every destination is fully
// replaced; there is no incremental patching.
type Sink interface {
	// TruncateOutputs clears every destination for the epoch before
	// the pass runs, so an aborted pass leaves visible emptiness, not
	// stale data.
	TruncateOutputs(ctx context.Context, epoch models.Epoch) error
	ReplaceRouteSchedules(ctx context.Context, epoch models.Epoch, schedules []*RouteScheduleModel) error
	ReplaceRouteIndex(ctx context.Context, index map[string]string) error
	ReplaceNextRide(ctx context.Context, projections []*NextRideProjection) error
	ReplaceStopAggregates(ctx context.Context, aggregates []*StopAggregate) error
	ReplaceServiceOptions(ctx context.Context, epoch models.Epoch, options []ServiceOptionRow) error
}

// EmptyStepError marks a pass aborted because a step produced no rows.
// The destinations stay truncated-but-empty for that epoch.
type EmptyStepError struct {
	Step string
}

func (e *EmptyStepError) Error() string {
	return fmt.Sprintf("aggregation step %s produced no rows", e.Step)
}

// Engine builds the per-route schedule models for one epoch. It is a
// single-pass batch job: it runs to completion or leaves the epoch's
// outputs empty.
type Engine struct {
	source Source
	sink   Sink
	logger logger.Logger
}

func NewEngine(source Source, sink Sink, log logger.Logger) *Engine {
	return &Engine{source: source, sink: sink, logger: log}
}

// Inputs is everything one aggregation pass consumes, loaded up front
// so the build itself is a pure function.
type Inputs struct {
	Epoch              models.Epoch
	RouteMappings      []RouteMappingRow
	StopTimes          []StopTimeRow
	MasterStopList     []SequenceRow
	StopInfo           map[string]StopInfoRow
	EffectiveDates     Window
	RouteBasics        []RouteBasicRow
	Calendar           []CalendarRow
	CalendarAttributes []CalendarAttributeRow
	Trips              []TripRow
	Directions         []DirectionRow
	Shapes             []ShapeRow
}

// Result is everything one pass persists.
type Result struct {
	RouteSchedules []*RouteScheduleModel
	RouteIndex     map[string]string
	NextRide       []*NextRideProjection
	StopAggregates []*StopAggregate
	ServiceOptions []ServiceOptionRow
}

// Run executes one aggregation pass for the epoch. Outputs are
// truncated first; a failure at any step leaves them empty rather than
// stale.
func (e *Engine) Run(ctx context.Context, epoch models.Epoch) error {
	if err := e.sink.TruncateOutputs(ctx, epoch); err != nil {
		return fmt.Errorf("truncating outputs: %w", err)
	}

	inputs, err := e.load(ctx, epoch)
	if err != nil {
		return err
	}

	result := Build(inputs)

	if err := e.sink.ReplaceRouteSchedules(ctx, epoch, result.RouteSchedules); err != nil {
		return fmt.Errorf("persisting route schedules: %w", err)
	}
	if err := e.sink.ReplaceServiceOptions(ctx, epoch, result.ServiceOptions); err != nil {
		return fmt.Errorf("persisting service options: %w", err)
	}

	// the reduced projections exist for the current epoch only
	if epoch == models.EpochCurrent {
		if err := e.sink.ReplaceRouteIndex(ctx, result.RouteIndex); err != nil {
			return fmt.Errorf("persisting route index: %w", err)
		}
		if err := e.sink.ReplaceNextRide(ctx, result.NextRide); err != nil {
			return fmt.Errorf("persisting next-ride projections: %w", err)
		}
		if err := e.sink.ReplaceStopAggregates(ctx, result.StopAggregates); err != nil {
			return fmt.Errorf("persisting stop aggregates: %w", err)
		}
	}

	e.logger.Info("Aggregation pass complete",
		"epoch", string(epoch),
		"routes", len(result.RouteSchedules),
		"stops", len(result.StopAggregates),
		"services", len(result.ServiceOptions))
	return nil
}

// load fetches every input in step order, failing fast on the first
// step that comes back empty.
func (e *Engine) load(ctx context.Context, epoch models.Epoch) (*Inputs, error) {
	in := &Inputs{Epoch: epoch}
	var err error

	if in.RouteMappings, err = e.source.RouteMappings(ctx, epoch); err != nil {
		return nil, err
	}
	if len(in.RouteMappings) == 0 {
		return nil, &EmptyStepError{Step: "route_mapping"}
	}

	if in.StopTimes, err = e.source.StopTimes(ctx, epoch); err != nil {
		return nil, err
	}
	if len(in.StopTimes) == 0 {
		return nil, &EmptyStepError{Step: "stop_times"}
	}

	if in.MasterStopList, err = e.source.MasterStopList(ctx, epoch); err != nil {
		return nil, err
	}
	if len(in.MasterStopList) == 0 {
		return nil, &EmptyStepError{Step: "master_stop_list"}
	}

	stopIDs := stopUniverse(in.StopTimes)
	if in.StopInfo, err = e.source.StopInfo(ctx, epoch, stopIDs); err != nil {
		return nil, err
	}
	if len(in.StopInfo) == 0 {
		return nil, &EmptyStepError{Step: "stops"}
	}

	if in.EffectiveDates, err = e.source.EffectiveDates(ctx, epoch); err != nil {
		return nil, err
	}
	if in.EffectiveDates.Start == "" && in.EffectiveDates.End == "" {
		return nil, &EmptyStepError{Step: "feed_info"}
	}

	if in.RouteBasics, err = e.source.RouteBasics(ctx); err != nil {
		return nil, err
	}
	if len(in.RouteBasics) == 0 {
		return nil, &EmptyStepError{Step: "routes"}
	}

	if in.Calendar, err = e.source.Calendar(ctx, epoch); err != nil {
		return nil, err
	}
	if len(in.Calendar) == 0 {
		return nil, &EmptyStepError{Step: "calendar"}
	}

	if in.CalendarAttributes, err = e.source.CalendarAttributes(ctx, epoch); err != nil {
		return nil, err
	}
	if len(in.CalendarAttributes) == 0 {
		return nil, &EmptyStepError{Step: "calendar_attributes"}
	}

	if in.Trips, err = e.source.Trips(ctx, epoch); err != nil {
		return nil, err
	}
	if len(in.Trips) == 0 {
		return nil, &EmptyStepError{Step: "trips"}
	}

	if in.Directions, err = e.source.Directions(ctx, epoch); err != nil {
		return nil, err
	}
	if len(in.Directions) == 0 {
		return nil, &EmptyStepError{Step: "directions"}
	}

	shapeIDs := shapeUniverse(in.Trips)
	if in.Shapes, err = e.source.Shapes(ctx, epoch, shapeIDs); err != nil {
		return nil, err
	}

	return in, nil
}

// Build folds the inputs into the per-route models. Pure: no I/O, no
// clock, deterministic for identical inputs.
func Build(in *Inputs) *Result {
	// 1. route mapping join
	currentSet := make(map[string]bool)
	upcomingSet := make(map[string]bool)
	oldToNew := make(map[string][]string)
	newToOld := make(map[string][]string)
	for _, m := range in.RouteMappings {
		if m.OldID != "" {
			currentSet[m.OldID] = true
		}
		if m.NewID != "" {
			upcomingSet[m.NewID] = true
		}
		if m.OldID != "" && m.NewID != "" {
			oldToNew[m.OldID] = appendUnique(oldToNew[m.OldID], m.NewID)
			newToOld[m.NewID] = appendUnique(newToOld[m.NewID], m.OldID)
		}
	}

	// 2. per-trip ordered stop->time map
	tripCalls := make(map[string][]StopTimeRow)
	for _, st := range in.StopTimes {
		tripCalls[st.TripID] = append(tripCalls[st.TripID], st)
	}
	for tripID := range tripCalls {
		calls := tripCalls[tripID]
		sort.SliceStable(calls, func(i, j int) bool { return calls[i].Sequence < calls[j].Sequence })
		tripCalls[tripID] = calls
	}

	observedStops := make(map[string]bool)
	for _, st := range in.StopTimes {
		observedStops[st.StopID] = true
	}

	// 3. master stop ordering per (route, direction), restricted to
	// observed stops
	orderings := make(map[string]map[string][]SequenceRow)
	for _, row := range in.MasterStopList {
		if !observedStops[row.StopID] {
			continue
		}
		byDirection, ok := orderings[row.RouteID]
		if !ok {
			byDirection = make(map[string][]SequenceRow)
			orderings[row.RouteID] = byDirection
		}
		byDirection[row.Direction] = append(byDirection[row.Direction], row)
	}
	for _, byDirection := range orderings {
		for dir := range byDirection {
			rows := byDirection[dir]
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
			byDirection[dir] = rows
		}
	}

	// 6. route basics seeded with status, mapping and effective dates
	routeModels := make(map[string]*RouteScheduleModel)
	routeIndex := make(map[string]string)
	for _, basic := range in.RouteBasics {
		mapping := RouteMappingInfo{
			Current:  newToOld[basic.RouteID],
			Upcoming: oldToNew[basic.RouteID],
		}
		// an unmapped route maps to itself
		if len(mapping.Current) == 0 {
			mapping.Current = []string{basic.RouteID}
		}
		if len(mapping.Upcoming) == 0 {
			mapping.Upcoming = []string{basic.RouteID}
		}

		routeModels[basic.RouteID] = &RouteScheduleModel{
			SchemaVersion:       SchemaVersion,
			RouteID:             basic.RouteID,
			RouteName:           basic.Title,
			Epoch:               string(in.Epoch),
			DirectionOptions:    make(map[string]string),
			DayOfServiceOptions: make(map[string]*ServiceOption),
			Schedule:            make(map[string]*DirectionSchedule),
			Shapes:              make(map[string]map[string][]ShapePoint),
			ScheduleStatus: ScheduleStatus{
				Current:  currentSet[basic.RouteID],
				Upcoming: upcomingSet[basic.RouteID],
			},
			RouteMapping:   mapping,
			EffectiveDates: in.EffectiveDates,
		}
		routeIndex[basic.RouteID] = basic.Title
	}

	// 7. service windows and descriptions
	windows := make(map[string]CalendarRow)
	for _, c := range in.Calendar {
		windows[c.ServiceID] = c
	}
	descriptions := make(map[string]string)
	for _, a := range in.CalendarAttributes {
		descriptions[a.ServiceID] = a.Description
	}

	// direction code lookup per (route, direction_id)
	directionCodes := make(map[string]map[string]DirectionRow)
	for _, d := range in.Directions {
		byID, ok := directionCodes[d.RouteID]
		if !ok {
			byID = make(map[string]DirectionRow)
			directionCodes[d.RouteID] = byID
		}
		byID[d.DirectionID] = d
	}

	// shape polylines
	shapePoints := make(map[string][]ShapeRow)
	for _, sp := range in.Shapes {
		shapePoints[sp.ShapeID] = append(shapePoints[sp.ShapeID], sp)
	}
	for id := range shapePoints {
		pts := shapePoints[id]
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Sequence < pts[j].Sequence })
		shapePoints[id] = pts
	}

	// 8. per-trip fold, ordered by service id
	trips := make([]TripRow, len(in.Trips))
	copy(trips, in.Trips)
	sort.SliceStable(trips, func(i, j int) bool {
		if trips[i].ServiceID != trips[j].ServiceID {
			return trips[i].ServiceID < trips[j].ServiceID
		}
		return trips[i].TripID < trips[j].TripID
	})

	stopAggregates := make(map[string]*StopAggregate)
	serviceOptionSet := make(map[string]ServiceOptionRow)

	for _, trip := range trips {
		calls := tripCalls[trip.TripID]
		if len(calls) == 0 {
			continue
		}
		model, ok := routeModels[trip.RouteID]
		if !ok {
			continue
		}
		dirRow, ok := directionCodes[trip.RouteID][trip.DirectionID]
		if !ok || dirRow.Direction == "" {
			continue
		}
		code := directionCode(dirRow.Direction)
		ordering, ok := orderings[trip.RouteID][code]
		if !ok || len(ordering) == 0 {
			continue
		}

		parent := parentServiceID(trip.ServiceID)

		ds, ok := model.Schedule[code]
		if !ok {
			ds = &DirectionSchedule{
				Trips:    make(map[string]map[string]map[string]string),
				Services: make(map[string]map[string]*ServiceMeta),
			}
			model.Schedule[code] = ds

			// the ordered stop catalogs are populated once per
			// direction, on first encounter
			for _, entry := range ordering {
				info := in.StopInfo[entry.StopID]
				ds.Stops = append(ds.Stops, info.Name)
				ds.StopCoordinates = append(ds.StopCoordinates, Coordinate{Lat: info.Lat, Lng: info.Lng})
				ds.StopSequence = append(ds.StopSequence, StopSequenceEntry{
					StopID:     entry.StopID,
					StopType:   entry.StopType,
					Timepoints: entry.Timepoints,
				})
			}
		}

		times := make(map[string]string, len(calls))
		for _, call := range calls {
			times[call.StopID] = callTime(call)
		}

		if ds.Trips[parent] == nil {
			ds.Trips[parent] = make(map[string]map[string]string)
		}
		ds.Trips[parent][trip.TripID] = times

		if ds.Services[parent] == nil {
			ds.Services[parent] = make(map[string]*ServiceMeta)
		}
		meta, ok := ds.Services[parent][trip.ServiceID]
		if !ok {
			window := windows[trip.ServiceID]
			meta = &ServiceMeta{
				Window:       Window{Start: window.StartDate, End: window.EndDate},
				IntervalDays: windowIntervalDays(window),
			}
			ds.Services[parent][trip.ServiceID] = meta
		}
		meta.TripIDs = append(meta.TripIDs, trip.TripID)

		// global per-stop index, current epoch only by use
		for stopID, t := range times {
			agg, ok := stopAggregates[stopID]
			if !ok {
				agg = &StopAggregate{
					SchemaVersion: SchemaVersion,
					StopID:        stopID,
					Routes:        make(map[string]map[string]map[string]StopDeparture),
				}
				stopAggregates[stopID] = agg
			}
			if agg.Routes[trip.RouteID] == nil {
				agg.Routes[trip.RouteID] = make(map[string]map[string]StopDeparture)
			}
			if agg.Routes[trip.RouteID][trip.ServiceID] == nil {
				agg.Routes[trip.RouteID][trip.ServiceID] = make(map[string]StopDeparture)
			}
			agg.Routes[trip.RouteID][trip.ServiceID][trip.TripID] = StopDeparture{
				Direction: code,
				Time:      t,
			}
		}

		// direction and day-of-service catalogs
		name := dirRow.Name
		if name == "" {
			name = dirRow.Direction
		}
		model.DirectionOptions[code] = name

		option, ok := model.DayOfServiceOptions[parent]
		if !ok {
			option = &ServiceOption{Description: descriptions[parent]}
			model.DayOfServiceOptions[parent] = option
		}
		if trip.ServiceID != parent {
			option.Variants = appendUnique(option.Variants, trip.ServiceID)
		}

		if _, seen := serviceOptionSet[trip.ServiceID]; !seen {
			window := windows[trip.ServiceID]
			serviceOptionSet[trip.ServiceID] = ServiceOptionRow{
				ServiceID:    trip.ServiceID,
				ParentID:     parent,
				Description:  descriptions[trip.ServiceID],
				Window:       Window{Start: window.StartDate, End: window.EndDate},
				IntervalDays: windowIntervalDays(window),
			}
		}

		// 9. shape polyline for this trip's direction
		if trip.ShapeID != "" {
			if model.Shapes[code] == nil {
				model.Shapes[code] = make(map[string][]ShapePoint)
			}
			if _, seen := model.Shapes[code][trip.ShapeID]; !seen {
				pts := shapePoints[trip.ShapeID]
				points := make([]ShapePoint, 0, len(pts))
				for _, p := range pts {
					points = append(points, ShapePoint{Lat: p.Lat, Lng: p.Lng})
				}
				model.Shapes[code][trip.ShapeID] = points
			}
		}
	}

	// 10. assemble outputs in stable order
	result := &Result{RouteIndex: routeIndex}

	routeIDs := make([]string, 0, len(routeModels))
	for id := range routeModels {
		routeIDs = append(routeIDs, id)
	}
	sort.Strings(routeIDs)
	for _, id := range routeIDs {
		model := routeModels[id]
		result.RouteSchedules = append(result.RouteSchedules, model)

		projection := &NextRideProjection{
			SchemaVersion:       SchemaVersion,
			RouteID:             id,
			DirectionOptions:    model.DirectionOptions,
			DayOfServiceOptions: model.DayOfServiceOptions,
			StopsByDirection:    make(map[string][]string),
		}
		for code, ds := range model.Schedule {
			projection.StopsByDirection[code] = ds.Stops
		}
		result.NextRide = append(result.NextRide, projection)
	}

	stopIDs := make([]string, 0, len(stopAggregates))
	for id := range stopAggregates {
		stopIDs = append(stopIDs, id)
	}
	sort.Strings(stopIDs)
	for _, id := range stopIDs {
		result.StopAggregates = append(result.StopAggregates, stopAggregates[id])
	}

	serviceIDs := make([]string, 0, len(serviceOptionSet))
	for id := range serviceOptionSet {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)
	for _, id := range serviceIDs {
		result.ServiceOptions = append(result.ServiceOptions, serviceOptionSet[id])
	}

	return result
}

// directionCode collapses a direction name to its two-letter code:
// first letter + "B" (North -> NB).
func directionCode(direction string) string {
	return direction[:1] + "B"
}

// callTime prefers the departure time, falling back to arrival.
func callTime(call StopTimeRow) string {
	if call.Departure != "" {
		return call.Departure
	}
	return call.Arrival
}

// windowIntervalDays computes the whole-day span of a calendar window.
func windowIntervalDays(c CalendarRow) int {
	w, err := parseWindow(Window{Start: c.StartDate, End: c.EndDate})
	if err != nil {
		return 0
	}
	return w.IntervalDays
}

func stopUniverse(stopTimes []StopTimeRow) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, st := range stopTimes {
		if !seen[st.StopID] {
			seen[st.StopID] = true
			ids = append(ids, st.StopID)
		}
	}
	sort.Strings(ids)
	return ids
}

func shapeUniverse(trips []TripRow) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range trips {
		if t.ShapeID != "" && !seen[t.ShapeID] {
			seen[t.ShapeID] = true
			ids = append(ids, t.ShapeID)
		}
	}
	sort.Strings(ids)
	return ids
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
