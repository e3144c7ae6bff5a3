package extract

import (
	"reflect"
	"testing"

	"github.com/vtatransit-data/internal/feed/domain"
	"github.com/vtatransit-data/pkg/transit/models"
)

func TestMapIsPure(t *testing.T) {
	row := Row{
		"route_id":         "rapid 500",
		"route_long_name":  "Rapid 500",
		"route_type":       "3",
		"route_color":      "0f9246",
		"route_text_color": "ffffff",
	}

	first := Map(domain.Routes, row)
	second := Map(domain.Routes, row)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical input produced different records: %v vs %v", first, second)
	}
}

func TestMapRoute(t *testing.T) {
	out := Map(domain.Routes, Row{
		"route_id":         "rapid 500",
		"route_short_name": "500",
		"route_long_name":  "Rapid 500",
		"route_desc":       "Rapid service",
		"route_type":       "3",
		"route_color":      "0f9246",
		"route_text_color": "ffffff",
	})

	if out["route_id"] != "Rapid 500" {
		t.Errorf("expected title-cased route id, got %q", out["route_id"])
	}
	if out["title"] != "Rapid 500" {
		t.Errorf("expected title from long name, got %q", out["title"])
	}
	if out["route_category"] != "Bus" {
		t.Errorf("expected Bus category for type 3, got %q", out["route_category"])
	}
	if out["route_color"] != "#0F9246" {
		t.Errorf("expected normalized color, got %q", out["route_color"])
	}
	if out["route_text_color"] != "#FFFFFF" {
		t.Errorf("expected normalized text color, got %q", out["route_text_color"])
	}
}

func TestMapRouteExtendedCategoryOverrides(t *testing.T) {
	out := Map(domain.Routes, Row{
		"route_id":       "901",
		"route_type":     "0",
		"ext_route_type": "900",
	})

	if out["route_category"] != "Light Rail" {
		t.Errorf("expected extended category, got %q", out["route_category"])
	}
	if out["extended_route_category"] != "900" {
		t.Errorf("expected raw extended type recorded, got %q", out["extended_route_category"])
	}

	// unknown extended types keep the base category
	out = Map(domain.Routes, Row{
		"route_id":       "22",
		"route_type":     "3",
		"ext_route_type": "999",
	})
	if out["route_category"] != "Bus" {
		t.Errorf("unknown extended type should keep base category, got %q", out["route_category"])
	}
}

func TestMapStop(t *testing.T) {
	out := Map(domain.Stops, Row{
		"stop_id":             "5243",
		"stop_name":           "1st & Santa Clara",
		"stop_desc":           "Northbound side",
		"zone_id":             "",
		"location_type":       "",
		"wheelchair_boarding": "",
	})

	if out["stop_name"] != "1st & Santa Clara (N)" {
		t.Errorf("expected description suffix on name, got %q", out["stop_name"])
	}
	if _, ok := out["zone_id"]; ok {
		t.Error("empty zone_id should be dropped")
	}
	if out["location_type"] != "stop" {
		t.Errorf("empty location_type should default to stop, got %q", out["location_type"])
	}
	if out["wheelchair_boarding"] != "no_info" {
		t.Errorf("empty wheelchair_boarding should default to no_info, got %q", out["wheelchair_boarding"])
	}
}

func TestMapStationFiltersByLocationType(t *testing.T) {
	if out := Map(domain.Stations, Row{"stop_id": "1", "location_type": "0"}); out != nil {
		t.Errorf("plain stop should not become a station, got %v", out)
	}

	out := Map(domain.Stations, Row{
		"stop_id":       "2",
		"stop_name":     "Diridon Station",
		"location_type": "1",
		"stop_lat":      "37.329",
		"stop_lon":      "-121.902",
	})
	if out == nil {
		t.Fatal("location_type 1 should map to a station")
	}
	if out["title"] != "Diridon Station" {
		t.Errorf("expected station title, got %q", out["title"])
	}
	if out["lat"] != "37.329" || out["lng"] != "-121.902" {
		t.Errorf("expected coordinates carried, got lat=%q lng=%q", out["lat"], out["lng"])
	}
}

func TestMapStopTimeTimepoint(t *testing.T) {
	cases := map[string]string{
		"":  "exact",
		"0": "approx",
		"1": "exact",
	}
	for raw, want := range cases {
		out := Map(domain.StopTimes, Row{"trip_id": "t1", "timepoint": raw})
		if out["timepoint"] != want {
			t.Errorf("timepoint %q: expected %q, got %q", raw, want, out["timepoint"])
		}
	}
}

func TestMapCalendarDayAvailability(t *testing.T) {
	row := Row{
		"service_id": "1",
		"start_date": "20260101",
		"end_date":   "20260630",
		"monday":     "1",
		"tuesday":    "1",
		"wednesday":  "1",
		"thursday":   "1",
		"friday":     "1",
		"saturday":   "0",
		"sunday":     "0",
	}

	out := Map(domain.Calendar, row)
	blob := out["day_availability"]
	if blob == "" {
		t.Fatal("expected day_availability blob")
	}

	days, err := models.DecodeDayAvailability(blob)
	if err != nil {
		t.Fatalf("blob should decode: %v", err)
	}
	if days.Monday != "1" || days.Sunday != "0" {
		t.Errorf("availability lost in encoding: %+v", days)
	}
}

func TestMapCalendarMissingDayOmitsBlob(t *testing.T) {
	out := Map(domain.Calendar, Row{
		"service_id": "1",
		"monday":     "1",
		// remaining day columns absent
	})
	if _, ok := out["day_availability"]; ok {
		t.Error("incomplete day columns should not produce a blob")
	}
	if out["service_id"] != "1" {
		t.Error("service_id should still map")
	}
}

func TestMapFareAttributeTransfers(t *testing.T) {
	cases := map[string]string{
		"":  "unlimited",
		"0": "none",
		"1": "once",
		"2": "twice",
	}
	for raw, want := range cases {
		out := Map(domain.FareAttributes, Row{"fare_id": "f1", "transfers": raw})
		if out["transfers"] != want {
			t.Errorf("transfers %q: expected %q, got %q", raw, want, out["transfers"])
		}
	}
}

func TestMapMasterStopList(t *testing.T) {
	out := Map(domain.MasterStopList, Row{
		"lineabbr":           "22",
		"stopid":             "5243",
		"direction":          "North",
		"sequence":           "14",
		"stoptype":           "N",
		"weekday_timepoint":  "1",
		"saturday_timepoint": "0",
		"sunday_timepoint":   "1",
	})

	if out["route_id"] != "22" || out["stop_id"] != "5243" {
		t.Errorf("expected helper columns renamed, got %v", out)
	}
	if out["stop_direction"] != "NB" {
		t.Errorf("expected direction collapsed to NB, got %q", out["stop_direction"])
	}
	if out["stop_type"] != "timepoint" {
		t.Errorf("expected N to map to timepoint, got %q", out["stop_type"])
	}

	avail := models.DecodeTimepointAvailability(out["timepoint_availability"])
	if avail[models.DayTypeWeekday] != 1 || avail[models.DayTypeSaturday] != 0 || avail[models.DayTypeSunday] != 1 {
		t.Errorf("unexpected availability: %v", avail)
	}
}

func TestMapUnknownDomain(t *testing.T) {
	if out := Map(domain.Domain("bogus"), Row{"a": "b"}); out != nil {
		t.Errorf("unknown domain should map to nil, got %v", out)
	}
}
