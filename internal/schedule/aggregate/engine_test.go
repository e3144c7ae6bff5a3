package aggregate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/pkg/transit/models"
)

// buildInputs is a small but complete fixture: one served route (60)
// that replaced route 10 at the epoch boundary, plus an unmapped route
// (22) with no trips.
func buildInputs() *Inputs {
	return &Inputs{
		Epoch:         models.EpochCurrent,
		RouteMappings: []RouteMappingRow{{OldID: "10", NewID: "60"}},
		StopTimes: []StopTimeRow{
			{TripID: "t1", StopID: "s1", Sequence: 1, Departure: "08:00:00"},
			{TripID: "t1", StopID: "s2", Sequence: 2, Departure: "08:10:00"},
			{TripID: "t2", StopID: "s1", Sequence: 1, Departure: "09:00:00"},
			{TripID: "t2", StopID: "s2", Sequence: 2, Departure: "09:10:00"},
			{TripID: "t3", StopID: "s1", Sequence: 1, Departure: "10:00:00"},
			{TripID: "t3", StopID: "s2", Sequence: 2, Departure: "10:10:00"},
		},
		MasterStopList: []SequenceRow{
			{RouteID: "60", Direction: "NB", StopID: "s1", StopType: "timepoint", Sequence: 1,
				Timepoints: models.TimepointAvailability{models.DayTypeWeekday: 1}},
			{RouteID: "60", Direction: "NB", StopID: "s2", StopType: "stop", Sequence: 2},
			// s9 never appears in stop_times and must not surface
			{RouteID: "60", Direction: "NB", StopID: "s9", StopType: "stop", Sequence: 3},
		},
		StopInfo: map[string]StopInfoRow{
			"s1": {Name: "First & Main", Lat: "37.1", Lng: "-121.9"},
			"s2": {Name: "Second & Main", Lat: "37.2", Lng: "-121.8"},
		},
		EffectiveDates: Window{Start: "20260101", End: "20260630"},
		RouteBasics: []RouteBasicRow{
			{RouteID: "10", Title: "Route 10", Category: "Bus"},
			{RouteID: "22", Title: "Route 22", Category: "Bus"},
			{RouteID: "60", Title: "Route 60", Category: "Bus"},
		},
		Calendar: []CalendarRow{
			{ServiceID: "1", StartDate: "20260101", EndDate: "20260630"},
			{ServiceID: "31", StartDate: "20260119", EndDate: "20260119"},
		},
		CalendarAttributes: []CalendarAttributeRow{
			{ServiceID: "1", Description: "Weekday"},
			{ServiceID: "31", Description: "Holiday"},
		},
		Trips: []TripRow{
			{TripID: "t1", RouteID: "60", ServiceID: "1", DirectionID: "0", ShapeID: "sh1"},
			{TripID: "t2", RouteID: "60", ServiceID: "1", DirectionID: "0", ShapeID: "sh1"},
			{TripID: "t3", RouteID: "60", ServiceID: "31", DirectionID: "0", ShapeID: "sh1"},
		},
		Directions: []DirectionRow{
			{RouteID: "60", DirectionID: "0", Direction: "North", Name: "Northbound"},
		},
		Shapes: []ShapeRow{
			{ShapeID: "sh1", Sequence: 2, Lat: "37.2", Lng: "-121.8"},
			{ShapeID: "sh1", Sequence: 1, Lat: "37.1", Lng: "-121.9"},
		},
	}
}

func findRoute(t *testing.T, result *Result, routeID string) *RouteScheduleModel {
	t.Helper()
	for _, model := range result.RouteSchedules {
		if model.RouteID == routeID {
			return model
		}
	}
	t.Fatalf("route %s missing from result", routeID)
	return nil
}

func TestBuildScheduleStatusAndMapping(t *testing.T) {
	result := Build(buildInputs())

	old := findRoute(t, result, "10")
	if !old.ScheduleStatus.Current || old.ScheduleStatus.Upcoming {
		t.Errorf("route 10 should be current-only, got %+v", old.ScheduleStatus)
	}
	if !reflect.DeepEqual(old.RouteMapping.Upcoming, []string{"60"}) {
		t.Errorf("route 10 should map forward to 60, got %v", old.RouteMapping.Upcoming)
	}

	replacement := findRoute(t, result, "60")
	if replacement.ScheduleStatus.Current || !replacement.ScheduleStatus.Upcoming {
		t.Errorf("route 60 should be upcoming-only, got %+v", replacement.ScheduleStatus)
	}
	if !reflect.DeepEqual(replacement.RouteMapping.Current, []string{"10"}) {
		t.Errorf("route 60 should map back to 10, got %v", replacement.RouteMapping.Current)
	}

	unmapped := findRoute(t, result, "22")
	if !reflect.DeepEqual(unmapped.RouteMapping.Current, []string{"22"}) ||
		!reflect.DeepEqual(unmapped.RouteMapping.Upcoming, []string{"22"}) {
		t.Errorf("an unmapped route should map to itself, got %+v", unmapped.RouteMapping)
	}
}

func TestBuildDirectionSchedule(t *testing.T) {
	result := Build(buildInputs())
	model := findRoute(t, result, "60")

	ds, ok := model.Schedule["NB"]
	if !ok {
		t.Fatalf("expected NB schedule, got directions %v", model.DirectionOptions)
	}

	if !reflect.DeepEqual(ds.Stops, []string{"First & Main", "Second & Main"}) {
		t.Errorf("unexpected stop catalog: %v", ds.Stops)
	}
	if len(ds.StopSequence) != 2 {
		t.Fatalf("unobserved stops should be dropped from the ordering, got %v", ds.StopSequence)
	}
	if ds.StopSequence[0].StopID != "s1" || ds.StopSequence[0].StopType != "timepoint" {
		t.Errorf("unexpected first sequence entry: %+v", ds.StopSequence[0])
	}

	// overlay service 31 folds under parent 1
	byParent := ds.Trips["1"]
	if len(byParent) != 3 {
		t.Fatalf("expected 3 trips under parent 1, got %v", byParent)
	}
	if byParent["t1"]["s1"] != "08:00:00" || byParent["t3"]["s2"] != "10:10:00" {
		t.Errorf("unexpected trip times: %v", byParent)
	}
	if got := ds.Services["1"]["1"].TripIDs; !reflect.DeepEqual(got, []string{"t1", "t2"}) {
		t.Errorf("unexpected base service trips: %v", got)
	}
	if got := ds.Services["1"]["31"].TripIDs; !reflect.DeepEqual(got, []string{"t3"}) {
		t.Errorf("unexpected overlay service trips: %v", got)
	}

	if model.DirectionOptions["NB"] != "Northbound" {
		t.Errorf("unexpected direction name: %v", model.DirectionOptions)
	}
	option := model.DayOfServiceOptions["1"]
	if option == nil || option.Description != "Weekday" {
		t.Fatalf("unexpected day-of-service option: %+v", option)
	}
	if !reflect.DeepEqual(option.Variants, []string{"31"}) {
		t.Errorf("overlay should register as a variant, got %v", option.Variants)
	}

	points := model.Shapes["NB"]["sh1"]
	if len(points) != 2 || points[0].Lat != "37.1" {
		t.Errorf("shape points should come back sequence-ordered, got %v", points)
	}
}

func TestBuildStopAggregates(t *testing.T) {
	result := Build(buildInputs())

	if len(result.StopAggregates) != 2 {
		t.Fatalf("expected 2 stop aggregates, got %d", len(result.StopAggregates))
	}
	// assembled in stop-id order
	agg := result.StopAggregates[0]
	if agg.StopID != "s1" {
		t.Fatalf("expected s1 first, got %s", agg.StopID)
	}

	dep := agg.Routes["60"]["1"]["t1"]
	if dep.Time != "08:00:00" || dep.Direction != "NB" {
		t.Errorf("unexpected departure: %+v", dep)
	}
	if _, ok := agg.Routes["60"]["31"]["t3"]; !ok {
		t.Errorf("overlay service should keep its own key in the stop view, got %v", agg.Routes["60"])
	}
}

func TestBuildServiceOptions(t *testing.T) {
	result := Build(buildInputs())

	if len(result.ServiceOptions) != 2 {
		t.Fatalf("expected 2 service options, got %v", result.ServiceOptions)
	}

	base := result.ServiceOptions[0]
	if base.ServiceID != "1" || base.ParentID != "1" {
		t.Errorf("unexpected base option: %+v", base)
	}
	if base.IntervalDays != 180 {
		t.Errorf("expected 180-day window, got %d", base.IntervalDays)
	}

	overlay := result.ServiceOptions[1]
	if overlay.ServiceID != "31" || overlay.ParentID != "1" {
		t.Errorf("unexpected overlay option: %+v", overlay)
	}
	if overlay.IntervalDays != 0 {
		t.Errorf("single-day window should span 0 days, got %d", overlay.IntervalDays)
	}
	if overlay.Description != "Holiday" {
		t.Errorf("unexpected overlay description: %q", overlay.Description)
	}
}

func TestBuildDeterministic(t *testing.T) {
	first := Build(buildInputs())
	second := Build(buildInputs())

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}
}

func TestParentServiceID(t *testing.T) {
	cases := map[string]string{
		"1":   "1",
		"2":   "2",
		"31":  "1",
		"103": "3",
		"":    "",
	}
	for in, want := range cases {
		if got := parentServiceID(in); got != want {
			t.Errorf("parentServiceID(%q): expected %q, got %q", in, want, got)
		}
	}
}

// fakeSource serves a canned Inputs fixture.
type fakeSource struct {
	in *Inputs
}

func (f *fakeSource) RouteMappings(context.Context, models.Epoch) ([]RouteMappingRow, error) {
	return f.in.RouteMappings, nil
}
func (f *fakeSource) StopTimes(context.Context, models.Epoch) ([]StopTimeRow, error) {
	return f.in.StopTimes, nil
}
func (f *fakeSource) MasterStopList(context.Context, models.Epoch) ([]SequenceRow, error) {
	return f.in.MasterStopList, nil
}
func (f *fakeSource) StopInfo(context.Context, models.Epoch, []string) (map[string]StopInfoRow, error) {
	return f.in.StopInfo, nil
}
func (f *fakeSource) EffectiveDates(context.Context, models.Epoch) (Window, error) {
	return f.in.EffectiveDates, nil
}
func (f *fakeSource) RouteBasics(context.Context) ([]RouteBasicRow, error) {
	return f.in.RouteBasics, nil
}
func (f *fakeSource) Calendar(context.Context, models.Epoch) ([]CalendarRow, error) {
	return f.in.Calendar, nil
}
func (f *fakeSource) CalendarAttributes(context.Context, models.Epoch) ([]CalendarAttributeRow, error) {
	return f.in.CalendarAttributes, nil
}
func (f *fakeSource) Trips(context.Context, models.Epoch) ([]TripRow, error) {
	return f.in.Trips, nil
}
func (f *fakeSource) Directions(context.Context, models.Epoch) ([]DirectionRow, error) {
	return f.in.Directions, nil
}
func (f *fakeSource) Shapes(context.Context, models.Epoch, []string) ([]ShapeRow, error) {
	return f.in.Shapes, nil
}

// fakeSink records which destinations were written.
type fakeSink struct {
	truncated      bool
	schedules      []*RouteScheduleModel
	wroteIndex     bool
	wroteNextRide  bool
	wroteStops     bool
	serviceOptions []ServiceOptionRow
}

func (f *fakeSink) TruncateOutputs(context.Context, models.Epoch) error {
	f.truncated = true
	return nil
}
func (f *fakeSink) ReplaceRouteSchedules(_ context.Context, _ models.Epoch, schedules []*RouteScheduleModel) error {
	f.schedules = schedules
	return nil
}
func (f *fakeSink) ReplaceRouteIndex(context.Context, map[string]string) error {
	f.wroteIndex = true
	return nil
}
func (f *fakeSink) ReplaceNextRide(context.Context, []*NextRideProjection) error {
	f.wroteNextRide = true
	return nil
}
func (f *fakeSink) ReplaceStopAggregates(context.Context, []*StopAggregate) error {
	f.wroteStops = true
	return nil
}
func (f *fakeSink) ReplaceServiceOptions(_ context.Context, _ models.Epoch, options []ServiceOptionRow) error {
	f.serviceOptions = options
	return nil
}

func TestEngineRunEmptyStep(t *testing.T) {
	in := buildInputs()
	in.RouteMappings = nil
	sink := &fakeSink{}
	engine := NewEngine(&fakeSource{in: in}, sink, logger.New(nil))

	err := engine.Run(context.Background(), models.EpochUpcoming)
	var empty *EmptyStepError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyStepError, got %v", err)
	}
	if empty.Step != "route_mapping" {
		t.Errorf("expected route_mapping step, got %q", empty.Step)
	}
	if !sink.truncated {
		t.Error("outputs should be truncated before loading, leaving the epoch visibly empty")
	}
	if sink.schedules != nil {
		t.Error("an aborted pass must not persist schedules")
	}
}

func TestEngineRunCurrentPersistsProjections(t *testing.T) {
	sink := &fakeSink{}
	engine := NewEngine(&fakeSource{in: buildInputs()}, sink, logger.New(nil))

	if err := engine.Run(context.Background(), models.EpochCurrent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.schedules) != 3 {
		t.Errorf("expected 3 route schedules, got %d", len(sink.schedules))
	}
	if !sink.wroteIndex || !sink.wroteNextRide || !sink.wroteStops {
		t.Error("current-epoch pass should persist all reduced projections")
	}
}

func TestEngineRunUpcomingSkipsProjections(t *testing.T) {
	sink := &fakeSink{}
	engine := NewEngine(&fakeSource{in: buildInputs()}, sink, logger.New(nil))

	if err := engine.Run(context.Background(), models.EpochUpcoming); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.wroteIndex || sink.wroteNextRide || sink.wroteStops {
		t.Error("reduced projections are current-epoch only")
	}
	if len(sink.serviceOptions) == 0 {
		t.Error("service options should persist for both epochs")
	}
}
