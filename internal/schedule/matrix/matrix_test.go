package matrix

import (
	"errors"
	"testing"
	"time"

	"github.com/vtatransit-data/internal/schedule/aggregate"
	"github.com/vtatransit-data/pkg/transit/models"
)

// scheduleModel is a northbound direction with two advertised timepoints
// (stopA, stopB), a plain stop between them (stopC) and a flagged
// timepoint no trip ever calls at (stopD). t3 is a short trip that joins
// the route at stopB.
func scheduleModel() *aggregate.RouteScheduleModel {
	return &aggregate.RouteScheduleModel{
		RouteID:          "22",
		RouteName:        "Route 22",
		Epoch:            string(models.EpochCurrent),
		DirectionOptions: map[string]string{"NB": "Northbound"},
		DayOfServiceOptions: map[string]*aggregate.ServiceOption{
			"1": {Description: "Weekday"},
		},
		Schedule: map[string]*aggregate.DirectionSchedule{
			"NB": {
				Trips: map[string]map[string]map[string]string{
					"1": {
						"t1": {"stopA": "08:00:00", "stopC": "08:05:00", "stopB": "08:10:00"},
						"t2": {"stopA": "08:05:00", "stopB": "08:12:00"},
						"t3": {"stopB": "08:08:00"},
					},
				},
				Services: map[string]map[string]*aggregate.ServiceMeta{
					"1": {
						"1": {
							Window:       aggregate.Window{Start: "20260101", End: "20261231"},
							IntervalDays: 0,
							TripIDs:      []string{"t1", "t2", "t3"},
						},
					},
				},
				Stops: []string{"Alpha & First", "Center & Second", "Bravo & Third", "Delta & Fourth"},
				StopSequence: []aggregate.StopSequenceEntry{
					{StopID: "stopA", StopType: "timepoint", Timepoints: models.TimepointAvailability{"1": 1}},
					{StopID: "stopC", StopType: "stop"},
					{StopID: "stopB", StopType: "timepoint", Timepoints: models.TimepointAvailability{"1": 1}},
					{StopID: "stopD", StopType: "timepoint", Timepoints: models.TimepointAvailability{"1": 1}},
				},
			},
		},
		EffectiveDates: aggregate.Window{Start: "20260101", End: "20260630"},
	}
}

func rowOrder(rows []Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.TripID
	}
	return ids
}

func TestBuildTripOrdering(t *testing.T) {
	m, err := NewBuilder(5).Build(scheduleModel(), Request{Direction: "NB", ServiceID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// t3 has no time at the reference stop; its 08:08 at stopB slots it
	// between t1 (08:10) and t2 (08:12)
	got := rowOrder(m.Rows)
	want := []string{"t1", "t3", "t2"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestBuildColumns(t *testing.T) {
	m, err := NewBuilder(5).Build(scheduleModel(), Request{Direction: "NB", ServiceID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(m.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %v", m.Columns)
	}
	if m.Columns[0].StopID != "stopA" || m.Columns[1].StopID != "stopB" {
		t.Errorf("unexpected column stops: %v", m.Columns)
	}
	if m.Columns[0].StopName != "Alpha & First" || m.Columns[1].StopName != "Bravo & Third" {
		t.Errorf("unexpected column names: %v", m.Columns)
	}

	// stopD is flagged but no trip records a time there
	for _, col := range m.Columns {
		if col.StopID == "stopD" {
			t.Error("a flagged timepoint with no recorded times must not become a column")
		}
	}

	// rows align to the columns, with empty cells where a trip skips a
	// column
	if m.Rows[0].Times[0] != "08:00:00" || m.Rows[0].Times[1] != "08:10:00" {
		t.Errorf("unexpected t1 times: %v", m.Rows[0].Times)
	}
	short := m.Rows[1]
	if short.TripID != "t3" || short.Times[0] != "" || short.Times[1] != "08:08:00" {
		t.Errorf("unexpected short-trip row: %+v", short)
	}
}

func TestBuildAdjustments(t *testing.T) {
	m, err := NewBuilder(5).Build(scheduleModel(), Request{Direction: "NB", ServiceID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if adj := m.Adjustments["stopC"]; adj.Before != "stopA" || adj.After != "stopB" {
		t.Errorf("stopC should point at its neighboring columns, got %+v", adj)
	}
	// the excluded trailing timepoint has no column after it
	if adj := m.Adjustments["stopD"]; adj.Before != "stopB" || adj.After != "" {
		t.Errorf("unexpected stopD adjustment: %+v", adj)
	}
}

func TestBuildUnknownDirectionOrService(t *testing.T) {
	b := NewBuilder(5)

	_, err := b.Build(scheduleModel(), Request{Direction: "XX", ServiceID: "1"})
	if !errors.Is(err, ErrNoSchedule) {
		t.Errorf("expected ErrNoSchedule for unknown direction, got %v", err)
	}

	_, err = b.Build(scheduleModel(), Request{Direction: "NB", ServiceID: "9"})
	if !errors.Is(err, ErrNoSchedule) {
		t.Errorf("expected ErrNoSchedule for unknown service, got %v", err)
	}
}

func TestBuildDisplayFoldsPastMidnight(t *testing.T) {
	model := scheduleModel()
	ds := model.Schedule["NB"]
	ds.Trips["1"]["t4"] = map[string]string{"stopA": "25:10:00", "stopB": "25:25:00"}
	ds.Services["1"]["1"].TripIDs = append(ds.Services["1"]["1"].TripIDs, "t4")

	m, err := NewBuilder(5).Build(model, Request{Direction: "NB", ServiceID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := rowOrder(m.Rows)
	if ids[len(ids)-1] != "t4" {
		t.Fatalf("owl trip should sort last, got %v", ids)
	}
	if m.Rows[len(m.Rows)-1].Times[0] != "01:10:00" {
		t.Errorf("expected folded display time, got %v", m.Rows[len(m.Rows)-1].Times)
	}
}

func TestBuildFutureServiceFallback(t *testing.T) {
	model := scheduleModel()
	ds := model.Schedule["NB"]
	ds.Trips["1"] = map[string]map[string]string{
		"f1": {"stopA": "07:00:00", "stopB": "07:10:00"},
		"f2": {"stopA": "07:30:00", "stopB": "07:40:00"},
	}
	// both services are long-running but their windows have not opened
	// yet; f1's opens first
	ds.Services["1"] = map[string]*aggregate.ServiceMeta{
		"1": {
			Window:       aggregate.Window{Start: "20260201", End: "20261231"},
			IntervalDays: 330,
			TripIDs:      []string{"f1"},
		},
		"21": {
			Window:       aggregate.Window{Start: "20260301", End: "20261231"},
			IntervalDays: 300,
			TripIDs:      []string{"f2"},
		},
	}

	b := NewBuilder(5)
	b.now = func() time.Time {
		return time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	}

	m, err := b.Build(model, Request{Direction: "NB", ServiceID: "1"})
	if err != nil {
		t.Fatalf("a route between schedules should still render: %v", err)
	}

	ids := rowOrder(m.Rows)
	if len(ids) != 1 || ids[0] != "f1" {
		t.Errorf("expected only the nearest future service's trips, got %v", ids)
	}

	// a tie on start date keeps both services
	ds.Services["1"]["21"].Window.Start = "20260201"
	m, err = b.Build(model, Request{Direction: "NB", ServiceID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Rows) != 2 {
		t.Errorf("tied future services should all survive, got %v", rowOrder(m.Rows))
	}
}

func TestBuildLongServiceInWindowStaysActive(t *testing.T) {
	model := scheduleModel()
	model.Schedule["NB"].Services["1"]["1"].IntervalDays = 364

	b := NewBuilder(5)
	b.now = func() time.Time {
		return time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	}

	m, err := b.Build(model, Request{Direction: "NB", ServiceID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Rows) != 3 {
		t.Errorf("a long service inside its window is active, got %v", rowOrder(m.Rows))
	}
}

// spanModel adds recorded times at the non-column stops so the
// origin/destination fallbacks have something to exercise.
func spanModel() *aggregate.RouteScheduleModel {
	model := scheduleModel()
	ds := model.Schedule["NB"]
	ds.StopSequence[3].StopType = "stop"
	ds.Trips["1"] = map[string]map[string]string{
		"u1": {"stopA": "09:00:00", "stopC": "", "stopB": "09:10:00", "stopD": "09:20:00"},
		"u2": {"stopA": "09:05:00", "stopB": "09:15:00"},
		"u3": {"stopA": "09:02:00", "stopC": "09:06:00", "stopB": "09:12:00", "stopD": ""},
	}
	ds.Services["1"]["1"].TripIDs = []string{"u1", "u2", "u3"}
	return model
}

func TestBuildSpanDefaultsDestination(t *testing.T) {
	m, err := NewBuilder(5).Build(spanModel(), Request{Direction: "NB", ServiceID: "1", Origin: "stopC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(m.Columns) != 2 || m.Columns[0].StopID != "stopC" || m.Columns[1].StopID != "stopD" {
		t.Fatalf("expected origin and last-stop columns, got %v", m.Columns)
	}

	// u2 never calls at the origin; u3 has no time at the default
	// destination; u1's blank origin falls back to the column before it
	if len(m.Rows) != 1 {
		t.Fatalf("expected one span row, got %v", rowOrder(m.Rows))
	}
	row := m.Rows[0]
	if row.TripID != "u1" || row.Times[0] != "09:00:00" || row.Times[1] != "09:20:00" {
		t.Errorf("unexpected span row: %+v", row)
	}
}

func TestBuildSpanExplicitDestinationFallback(t *testing.T) {
	m, err := NewBuilder(5).Build(spanModel(), Request{
		Direction: "NB", ServiceID: "1", Origin: "stopA", Destination: "stopC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := rowOrder(m.Rows)
	if len(got) != 2 || got[0] != "u1" || got[1] != "u3" {
		t.Fatalf("expected u1 and u3, got %v", got)
	}
	// u1's blank destination falls back to the column after stopC
	if m.Rows[0].Times[1] != "09:10:00" {
		t.Errorf("expected after-column fallback time, got %v", m.Rows[0].Times)
	}
	if m.Rows[1].Times[1] != "09:06:00" {
		t.Errorf("expected recorded destination time, got %v", m.Rows[1].Times)
	}
}

func TestBuildSpanUnknownStops(t *testing.T) {
	b := NewBuilder(5)

	_, err := b.Build(spanModel(), Request{Direction: "NB", ServiceID: "1", Origin: "nope"})
	if !errors.Is(err, ErrUnknownStop) {
		t.Errorf("expected ErrUnknownStop for bad origin, got %v", err)
	}

	_, err = b.Build(spanModel(), Request{
		Direction: "NB", ServiceID: "1", Origin: "stopA", Destination: "nope",
	})
	if !errors.Is(err, ErrUnknownStop) {
		t.Errorf("expected ErrUnknownStop for bad destination, got %v", err)
	}
}
