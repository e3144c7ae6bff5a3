// Package matrix renders a route schedule model into the tabular
// timetable view: timepoint columns across, trips down, one table per
// (direction, day-of-service) pair.
package matrix

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vtatransit-data/internal/schedule/aggregate"
	"github.com/vtatransit-data/pkg/transit/models"
)

// ErrNoSchedule is returned when the model has no trips for the
// requested direction and day of service.
var ErrNoSchedule = errors.New("no schedule for direction and service")

// ErrUnknownStop is returned when a requested origin or destination stop
// is not part of the direction's stop catalog.
var ErrUnknownStop = errors.New("stop not in direction catalog")

// Request selects one view of a route schedule. Direction is the
// two-letter code (NB, SB, ...), ServiceID the parent day-of-service
// id. Origin and Destination are optional stop ids; setting Origin
// collapses the table to a two-column origin/destination view.
type Request struct {
	Direction   string
	ServiceID   string
	Origin      string
	Destination string
}

// Column is one rendered stop column.
type Column struct {
	StopID   string `json:"stop_id"`
	StopName string `json:"stop_name"`
}

// Adjustment points a stop that is not rendered as a column at the
// nearest rendered column before and after it in the sequence. Empty
// when no such column exists on that side.
type Adjustment struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Row is one trip across the rendered columns. Times is parallel to the
// matrix columns, clock-folded for display, empty where the trip has no
// recorded time.
type Row struct {
	TripID    string   `json:"trip_id"`
	ServiceID string   `json:"service_id"`
	Times     []string `json:"times"`
}

// Matrix is the assembled timetable for one request.
type Matrix struct {
	RouteID            string                `json:"route_id"`
	RouteName          string                `json:"route_name"`
	Direction          string                `json:"direction"`
	DirectionName      string                `json:"direction_name"`
	ServiceID          string                `json:"service_id"`
	ServiceDescription string                `json:"service_description"`
	Columns            []Column              `json:"columns"`
	Adjustments        map[string]Adjustment `json:"adjustments"`
	Rows               []Row                 `json:"rows"`
}

// Builder assembles matrices from route schedule models. Building is
// pure apart from the clock, so concurrent requests for the same route
// can overlap freely.
type Builder struct {
	gapDays int
	now     func() time.Time
}

// NewBuilder returns a Builder that treats services spanning more than
// gapDays as subject to date-window filtering.
func NewBuilder(gapDays int) *Builder {
	return &Builder{gapDays: gapDays, now: time.Now}
}

// Build renders the requested view of the model.
func (b *Builder) Build(model *aggregate.RouteScheduleModel, req Request) (*Matrix, error) {
	ds, ok := model.Schedule[req.Direction]
	if !ok {
		return nil, fmt.Errorf("direction %s: %w", req.Direction, ErrNoSchedule)
	}
	trips := ds.Trips[req.ServiceID]
	services := ds.Services[req.ServiceID]
	if len(trips) == 0 || len(services) == 0 {
		return nil, fmt.Errorf("service %s: %w", req.ServiceID, ErrNoSchedule)
	}

	columns, adjustments := scheduleTimepoints(ds, trips, req.ServiceID)

	kept := b.activeTrips(services, model.EffectiveDates, models.Epoch(model.Epoch))
	active := make(map[string]map[string]string, len(kept))
	for tripID, times := range trips {
		if _, ok := kept[tripID]; ok {
			active[tripID] = times
		}
	}

	ordered := orderTrips(active, ds.StopSequence)

	m := &Matrix{
		RouteID:       model.RouteID,
		RouteName:     model.RouteName,
		Direction:     req.Direction,
		DirectionName: model.DirectionOptions[req.Direction],
		ServiceID:     req.ServiceID,
		Adjustments:   adjustments,
		Rows:          []Row{},
	}
	if option := model.DayOfServiceOptions[req.ServiceID]; option != nil {
		m.ServiceDescription = option.Description
	}

	if req.Origin == "" {
		m.Columns = columns
		for _, tripID := range ordered {
			times := make([]string, len(columns))
			for i, col := range columns {
				times[i] = displayTime(active[tripID][col.StopID])
			}
			m.Rows = append(m.Rows, Row{TripID: tripID, ServiceID: kept[tripID], Times: times})
		}
		return m, nil
	}

	return b.buildSpan(m, ds, active, ordered, kept, adjustments, req)
}

// buildSpan renders the two-column origin/destination view. A missing
// destination defaults to the last stop of the direction.
func (b *Builder) buildSpan(m *Matrix, ds *aggregate.DirectionSchedule, trips map[string]map[string]string, ordered []string, kept map[string]string, adjustments map[string]Adjustment, req Request) (*Matrix, error) {
	names := make(map[string]string, len(ds.StopSequence))
	for i, entry := range ds.StopSequence {
		if i < len(ds.Stops) {
			names[entry.StopID] = ds.Stops[i]
		}
	}

	if _, ok := names[req.Origin]; !ok {
		return nil, fmt.Errorf("origin %s: %w", req.Origin, ErrUnknownStop)
	}

	dest := req.Destination
	if dest == "" && len(ds.StopSequence) > 0 {
		dest = ds.StopSequence[len(ds.StopSequence)-1].StopID
	}
	if _, ok := names[dest]; !ok {
		return nil, fmt.Errorf("destination %s: %w", dest, ErrUnknownStop)
	}

	m.Columns = []Column{
		{StopID: req.Origin, StopName: names[req.Origin]},
		{StopID: dest, StopName: names[dest]},
	}

	for _, tripID := range ordered {
		trip := trips[tripID]

		// A trip without the origin stop is not part of this span. An
		// empty recorded time falls back to the nearest column before
		// the origin.
		originTime, ok := trip[req.Origin]
		if !ok {
			continue
		}
		if originTime == "" {
			originTime = trip[adjustments[req.Origin].Before]
			if originTime == "" {
				continue
			}
		}

		destTime, ok := trip[dest]
		if !ok {
			continue
		}
		if destTime == "" {
			if req.Destination == "" {
				continue
			}
			// an explicit destination falls back to the nearest column
			// after it
			destTime = trip[adjustments[dest].After]
			if destTime == "" {
				continue
			}
		}

		m.Rows = append(m.Rows, Row{
			TripID:    tripID,
			ServiceID: kept[tripID],
			Times:     []string{displayTime(originTime), displayTime(destTime)},
		})
	}
	return m, nil
}

// scheduleTimepoints selects the default column set and computes the
// before/after adjustment pointers for every stop left out of it. A stop
// becomes a column when it is flagged as a timepoint for the day of
// service and at least one trip recorded a time there; a flagged stop no
// trip ever calls at stays out of the columns.
func scheduleTimepoints(ds *aggregate.DirectionSchedule, trips map[string]map[string]string, serviceID string) ([]Column, map[string]Adjustment) {
	selected := make(map[string]bool, len(ds.StopSequence))
	for _, entry := range ds.StopSequence {
		if entry.StopType != "timepoint" || entry.Timepoints[serviceID] != 1 {
			continue
		}
		for _, trip := range trips {
			if trip[entry.StopID] != "" {
				selected[entry.StopID] = true
				break
			}
		}
	}

	var columns []Column
	adjustments := make(map[string]Adjustment)

	previous := ""
	for i, entry := range ds.StopSequence {
		if selected[entry.StopID] {
			name := ""
			if i < len(ds.Stops) {
				name = ds.Stops[i]
			}
			columns = append(columns, Column{StopID: entry.StopID, StopName: name})
			previous = entry.StopID
			continue
		}
		adjustments[entry.StopID] = Adjustment{Before: previous}
	}

	next := ""
	for i := len(ds.StopSequence) - 1; i >= 0; i-- {
		entry := ds.StopSequence[i]
		if selected[entry.StopID] {
			next = entry.StopID
			continue
		}
		adj := adjustments[entry.StopID]
		adj.After = next
		adjustments[entry.StopID] = adj
	}

	return columns, adjustments
}

// activeTrips filters the day's trips down to those of services active
// for the view, returning trip id -> member service id. A service is
// inactive when its calendar interval exceeds the gap threshold and its
// window misses the view: for the current epoch, today outside the
// service window; for upcoming, a service start neither inside the
// feed's effective window nor straddling its start.
//
// When every service is inactive the nearest future service is retained
// instead, so a route between schedules still renders something rather
// than an empty table. Ties on start date all survive.
func (b *Builder) activeTrips(services map[string]*aggregate.ServiceMeta, effective aggregate.Window, epoch models.Epoch) map[string]string {
	now := b.now()
	today := dateOnly(now)

	kept := make(map[string]string)
	var (
		total          int
		futureStart    time.Time
		futureServices []string
	)

	for serviceID, meta := range services {
		total += len(meta.TripIDs)

		start, startErr := time.Parse(models.WindowDateLayout, meta.Window.Start)
		end, endErr := time.Parse(models.WindowDateLayout, meta.Window.End)
		windowKnown := startErr == nil && endErr == nil

		inWindow := false
		if windowKnown {
			switch epoch {
			case models.EpochCurrent:
				inWindow = !today.Before(start) && !today.After(end)
			case models.EpochUpcoming:
				effStart, effErr := time.Parse(models.WindowDateLayout, effective.Start)
				effEnd, effEndErr := time.Parse(models.WindowDateLayout, effective.End)
				if effErr == nil && effEndErr == nil {
					inside := !start.Before(effStart) && !start.After(effEnd)
					straddles := !start.After(effStart) && !end.Before(effStart)
					inWindow = inside || straddles
				}
			}
		}

		inactive := meta.IntervalDays > b.gapDays && !inWindow
		if !inactive {
			for _, tripID := range meta.TripIDs {
				kept[tripID] = serviceID
			}
			continue
		}

		if windowKnown && start.After(today) {
			switch {
			case futureServices == nil || start.Before(futureStart):
				futureStart = start
				futureServices = []string{serviceID}
			case start.Equal(futureStart):
				futureServices = append(futureServices, serviceID)
			}
		}
	}

	if len(kept) == 0 && total > 0 {
		for _, serviceID := range futureServices {
			for _, tripID := range services[serviceID].TripIDs {
				kept[tripID] = serviceID
			}
		}
	}

	return kept
}

// orderTrips produces the render order. Short trips may start or end
// partway through the stop sequence, so a plain per-stop sort is
// unsafe: trips with a time at the reference stop (the first timepoint
// any trip recorded a time at) are sorted by that time, and the rest
// are placed one by one against the nearest trip they share a recorded
// stop with.
func orderTrips(trips map[string]map[string]string, sequence []aggregate.StopSequenceEntry) []string {
	reference := ""
	for _, entry := range sequence {
		if entry.StopType != "timepoint" {
			continue
		}
		for _, trip := range trips {
			if trip[entry.StopID] != "" {
				reference = entry.StopID
				break
			}
		}
		if reference != "" {
			break
		}
	}

	tripIDs := make([]string, 0, len(trips))
	for tripID := range trips {
		tripIDs = append(tripIDs, tripID)
	}
	sort.Strings(tripIDs)

	if reference == "" {
		// no timepoint carries a time at all; order by each trip's
		// earliest recorded call
		sort.SliceStable(tripIDs, func(i, j int) bool {
			ti := firstTime(trips[tripIDs[i]], sequence)
			tj := firstTime(trips[tripIDs[j]], sequence)
			if ti.Seconds() != tj.Seconds() || ti.IsZero() != tj.IsZero() {
				return ti.Before(tj)
			}
			return tripIDs[i] < tripIDs[j]
		})
		return tripIDs
	}

	var anchored, unanchored []string
	for _, tripID := range tripIDs {
		if trips[tripID][reference] != "" {
			anchored = append(anchored, tripID)
		} else {
			unanchored = append(unanchored, tripID)
		}
	}

	sort.SliceStable(anchored, func(i, j int) bool {
		ti := parseTime(trips[anchored[i]][reference])
		tj := parseTime(trips[anchored[j]][reference])
		if ti.Seconds() != tj.Seconds() {
			return ti.Before(tj)
		}
		return anchored[i] < anchored[j]
	})

	ordered := anchored
	for _, tripID := range unanchored {
		ordered = insertTrip(ordered, tripID, trips, sequence)
	}
	return ordered
}

// insertTrip places an unanchored trip relative to the nearest already
// ordered trip it can be compared with, scanning from the tail so the
// trip lands in the latest position its comparison supports. The
// comparison key is resolved lazily per pair: the first stop in
// sequence order with a recorded time on both sides decides. A trip
// sharing no recorded stop with anything appends at the end.
func insertTrip(ordered []string, tripID string, trips map[string]map[string]string, sequence []aggregate.StopSequenceEntry) []string {
	trip := trips[tripID]
	for i := len(ordered) - 1; i >= 0; i-- {
		other := trips[ordered[i]]

		at := i + 1
		for _, entry := range sequence {
			mine, theirs := trip[entry.StopID], other[entry.StopID]
			if mine == "" || theirs == "" {
				continue
			}
			if parseTime(mine).Before(parseTime(theirs)) {
				at = i
			}
			ordered = append(ordered, "")
			copy(ordered[at+1:], ordered[at:])
			ordered[at] = tripID
			return ordered
		}
	}
	return append(ordered, tripID)
}

// firstTime returns the trip's earliest recorded call in sequence order.
func firstTime(trip map[string]string, sequence []aggregate.StopSequenceEntry) models.ServiceTime {
	for _, entry := range sequence {
		if trip[entry.StopID] != "" {
			return parseTime(trip[entry.StopID])
		}
	}
	return models.ServiceTime{}
}

func parseTime(s string) models.ServiceTime {
	t, err := models.ParseServiceTime(s)
	if err != nil {
		return models.ServiceTime{}
	}
	return t
}

// displayTime folds a raw feed time for display; malformed or missing
// times render as empty cells.
func displayTime(s string) string {
	return parseTime(s).Display()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
