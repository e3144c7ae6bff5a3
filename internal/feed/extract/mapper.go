package extract

import (
	"strings"

	"github.com/vtatransit-data/internal/feed/domain"
	"github.com/vtatransit-data/pkg/transit/models"
)

// Map turns one normalized extract row into the mapped record for a
// domain. It is a pure function: identical input always yields the
// identical record. Unknown domains and rows outside the domain's
// filter yield nil.
func Map(key domain.Domain, row Row) Row {
	fn, ok := mappers[key]
	if !ok {
		return nil
	}
	return fn(row)
}

// mappers is the closed dispatch table, one mapping function per
// domain.
var mappers = map[domain.Domain]func(Row) Row{
	domain.Routes:             mapRoute,
	domain.Stops:              mapStop,
	domain.Stations:           mapStation,
	domain.Trips:              mapTrip,
	domain.Directions:         mapDirection,
	domain.StopTimes:          mapStopTime,
	domain.Calendar:           mapCalendar,
	domain.CalendarDates:      mapCalendarDate,
	domain.CalendarAttributes: mapCalendarAttribute,
	domain.FareAttributes:     mapFareAttribute,
	domain.FareRules:          mapFareRule,
	domain.Shapes:             mapShape,
	domain.Frequencies:        mapFrequency,
	domain.Transfers:          mapTransfer,
	domain.FeedInfo:           mapFeedInfo,
	domain.MasterStopList:     mapMasterStopList,
	domain.RouteMapping:       mapRouteMapping,
}

// routeCategories maps route_type to the rider-facing category label.
var routeCategories = map[string]string{
	"0": "Light Rail",
	"1": "Subway/Metro",
	"2": "Rail",
	"3": "Bus",
	"4": "Ferry",
	"5": "Cable Car",
	"6": "Suspended Cable Car",
	"7": "Funicular",
}

// extendedRouteCategories overrides the category for the extended
// route types the agency publishes.
var extendedRouteCategories = map[string]string{
	"110": "Light Rail",
	"111": "Levi's Express",
	"701": "Express",
	"702": "Frequent",
	"704": "Local",
	"711": "Shuttles",
	"713": "School Service",
	"714": "Bus Bridge",
	"900": "Light Rail",
}

var yesNoInfo = map[string]string{
	"0": "no_info",
	"1": "yes",
	"2": "no",
}

var pickupDropOffTypes = map[string]string{
	"0": "regular",
	"1": "none",
	"2": "phone",
	"3": "driver",
}

var locationTypes = map[string]string{
	"0": "stop",
	"1": "station",
	"2": "station_entrance_exit",
}

var transferTypes = map[string]string{
	"0": "recommended",
	"1": "timed",
	"2": "min_timed",
	"3": "none",
}

func mapRoute(row Row) Row {
	out := Row{}

	if v, ok := row["route_id"]; ok {
		out["route_id"] = titleCase(v)
	}
	if v, ok := row["route_short_name"]; ok {
		out["route_short_name"] = v
	}
	if v, ok := row["route_long_name"]; ok {
		out["title"] = v
		out["route_long_name"] = v
	}
	if v, ok := row["route_desc"]; ok {
		out["description"] = v
	}

	if v, ok := row["route_type"]; ok {
		if category, known := routeCategories[v]; known {
			out["route_category"] = category

			if ext, hasExt := row["ext_route_type"]; hasExt {
				if extCategory, known := extendedRouteCategories[ext]; known {
					out["route_category"] = extCategory
					out["extended_route_category"] = ext
				}
			}
		}
	}

	if v, ok := row["route_url"]; ok {
		out["route_url"] = v
	}
	if v, ok := row["route_color"]; ok {
		out["route_color"] = "#" + strings.ToUpper(v)
	}
	if v, ok := row["route_text_color"]; ok {
		out["route_text_color"] = "#" + strings.ToUpper(v)
	}
	if v, ok := row["route_sort_order"]; ok {
		out["route_sort_order"] = v
	}

	return out
}

func mapStop(row Row) Row {
	out := Row{}
	direct(row, out,
		"stop_id", "stop_code", "stop_desc", "stop_lat", "stop_lon",
		"stop_url", "parent_station", "stop_timezone")

	// The one-letter description suffix disambiguates same-named stops
	// on opposite sides of a street.
	if name, ok := row["stop_name"]; ok {
		if desc := row["stop_desc"]; desc != "" {
			name += " (" + desc[:1] + ")"
		}
		out["stop_name"] = name
	}

	if v, ok := row["zone_id"]; ok && v != "" {
		out["zone_id"] = v
	}

	if v, ok := row["location_type"]; ok {
		if v == "" {
			out["location_type"] = locationTypes["0"]
		} else if label, known := locationTypes[v]; known {
			out["location_type"] = label
		}
	}

	if v, ok := row["wheelchair_boarding"]; ok {
		if v == "" {
			out["wheelchair_boarding"] = yesNoInfo["0"]
		} else if label, known := yesNoInfo[v]; known {
			out["wheelchair_boarding"] = label
		}
	}

	return out
}

func mapStation(row Row) Row {
	// Stations are the subset of stops flagged location_type 1.
	if row["location_type"] != "1" {
		return nil
	}

	out := Row{}
	if v, ok := row["stop_name"]; ok {
		out["title"] = v
	}
	if v, ok := row["stop_id"]; ok {
		out["stop_id"] = v
	}
	if v, ok := row["stop_desc"]; ok {
		out["description"] = v
	}
	if lat, ok := row["stop_lat"]; ok {
		if lng, ok := row["stop_lon"]; ok {
			out["lat"] = lat
			out["lng"] = lng
		}
	}

	return out
}

func mapTrip(row Row) Row {
	out := Row{}
	direct(row, out,
		"route_id", "service_id", "trip_id", "trip_headsign",
		"direction_id", "block_id", "shape_id")

	for _, field := range []string{"wheelchair_accessible", "bikes_allowed"} {
		if v, ok := row[field]; ok {
			if v == "" {
				out[field] = yesNoInfo["0"]
			} else if label, known := yesNoInfo[v]; known {
				out[field] = label
			}
		}
	}

	return out
}

func mapDirection(row Row) Row {
	out := Row{}
	direct(row, out, "route_id", "direction_id", "direction", "direction_name")
	return out
}

func mapStopTime(row Row) Row {
	out := Row{}
	direct(row, out,
		"trip_id", "arrival_time", "departure_time", "stop_id",
		"stop_sequence", "stop_headsign", "shape_dist_traveled")

	if v, ok := row["pickup_type"]; ok {
		if label, known := pickupDropOffTypes[v]; known {
			out["pickup_type"] = label
		}
	}
	if v, ok := row["drop_off_type"]; ok {
		if label, known := pickupDropOffTypes[v]; known {
			out["drop_off_type"] = label
		}
	}

	if v, ok := row["timepoint"]; ok {
		switch v {
		case "":
			// times are exact unless flagged otherwise
			out["timepoint"] = "exact"
		case "0":
			out["timepoint"] = "approx"
		case "1":
			out["timepoint"] = "exact"
		}
	}

	return out
}

func mapCalendar(row Row) Row {
	out := Row{}
	direct(row, out, "service_id", "start_date", "end_date")

	days := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	for _, day := range days {
		if _, ok := row[day]; !ok {
			return out
		}
	}

	out["day_availability"] = models.DayAvailability{
		Monday:    row["monday"],
		Tuesday:   row["tuesday"],
		Wednesday: row["wednesday"],
		Thursday:  row["thursday"],
		Friday:    row["friday"],
		Saturday:  row["saturday"],
		Sunday:    row["sunday"],
	}.Encode()

	return out
}

func mapCalendarDate(row Row) Row {
	out := Row{}
	direct(row, out, "service_id", "date")

	switch row["exception_type"] {
	case "1":
		out["exception_type"] = "added"
	case "2":
		out["exception_type"] = "removed"
	}

	return out
}

func mapCalendarAttribute(row Row) Row {
	out := Row{}
	direct(row, out, "service_id", "service_description")
	return out
}

func mapFareAttribute(row Row) Row {
	out := Row{}
	direct(row, out, "fare_id", "price", "currency_type")

	switch row["payment_method"] {
	case "0":
		out["payment_method"] = "on_board"
	case "1":
		out["payment_method"] = "before_board"
	}

	if v, ok := row["transfers"]; ok {
		switch v {
		case "":
			// a blank transfers column means unlimited, per the feed
			// reference
			out["transfers"] = "unlimited"
		case "0":
			out["transfers"] = "none"
		case "1":
			out["transfers"] = "once"
		case "2":
			out["transfers"] = "twice"
		}
	}

	if v, ok := row["transfer_duration"]; ok && v != "" {
		out["transfer_duration"] = v
	}

	return out
}

func mapFareRule(row Row) Row {
	out := Row{}
	direct(row, out, "fare_id", "route_id")

	for _, field := range []string{"origin_id", "destination_id", "contains_id"} {
		if v, ok := row[field]; ok && v != "" {
			out[field] = v
		}
	}

	return out
}

func mapShape(row Row) Row {
	out := Row{}
	direct(row, out,
		"shape_id", "shape_pt_lat", "shape_pt_lon",
		"shape_pt_sequence", "shape_dist_traveled")
	return out
}

func mapFrequency(row Row) Row {
	out := Row{}
	direct(row, out, "trip_id", "start_time", "end_time", "headway_secs")

	if v, ok := row["exact_times"]; ok {
		switch v {
		case "", "0":
			out["exact_times"] = "none"
		case "1":
			out["exact_times"] = "exact"
		}
	}

	return out
}

func mapTransfer(row Row) Row {
	out := Row{}
	direct(row, out, "from_stop_id", "to_stop_id", "min_transfer_time")

	if v, ok := row["transfer_type"]; ok {
		if v == "" {
			out["transfer_type"] = transferTypes["0"]
		} else if label, known := transferTypes[v]; known {
			out["transfer_type"] = label
		}
	}

	return out
}

func mapFeedInfo(row Row) Row {
	out := Row{}
	direct(row, out,
		"feed_publisher_name", "feed_publisher_url", "feed_lang",
		"default_lang", "feed_start_date", "feed_end_date",
		"feed_version", "feed_contact_email", "feed_contact_url")
	return out
}

func mapMasterStopList(row Row) Row {
	out := Row{}

	if v, ok := row["lineabbr"]; ok {
		out["route_id"] = v
	}
	if v, ok := row["stopid"]; ok {
		out["stop_id"] = v
	}
	// Directions collapse to a two-letter code: first letter + "B"
	// (N -> NB, S -> SB, ...).
	if v, ok := row["direction"]; ok && v != "" {
		out["stop_direction"] = v[:1] + "B"
	}
	if v, ok := row["sequence"]; ok {
		out["stop_sequence"] = v
	}

	switch row["stoptype"] {
	case "S":
		out["stop_type"] = "stop"
	case "N":
		out["stop_type"] = "timepoint"
	}

	weekday, hasWeekday := row["weekday_timepoint"]
	saturday, hasSaturday := row["saturday_timepoint"]
	sunday, hasSunday := row["sunday_timepoint"]
	if hasWeekday && hasSaturday && hasSunday {
		out["timepoint_availability"] = models.TimepointAvailability{
			models.DayTypeWeekday:  boolFlag(weekday),
			models.DayTypeSaturday: boolFlag(saturday),
			models.DayTypeSunday:   boolFlag(sunday),
		}.Encode()
	}

	return out
}

func mapRouteMapping(row Row) Row {
	out := Row{}
	direct(row, out, "old_route_id", "new_route_id")
	return out
}

// direct copies fields that exist on the row through unchanged.
func direct(row, out Row, fields ...string) {
	for _, field := range fields {
		if v, ok := row[field]; ok {
			out[field] = v
		}
	}
}

func boolFlag(v string) int {
	if v == "1" {
		return 1
	}
	return 0
}

// titleCase upper-cases the first letter of each space-separated word,
// leaving the rest of the word alone.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
