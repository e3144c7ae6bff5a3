package domain

// Domain identifies one import domain: a fixed-name extract file and
// the destination its mapped rows land in. The set is closed; unknown
// keys coming off a queue are dropped by the pipeline.
type Domain string

const (
	Routes             Domain = "routes"
	Stops              Domain = "stops"
	Stations           Domain = "stations"
	Trips              Domain = "trips"
	Directions         Domain = "directions"
	StopTimes          Domain = "stop_times"
	Calendar           Domain = "calendar"
	CalendarDates      Domain = "calendar_dates"
	CalendarAttributes Domain = "calendar_attributes"
	FareAttributes     Domain = "fare_attributes"
	FareRules          Domain = "fare_rules"
	Shapes             Domain = "shapes"
	Frequencies        Domain = "frequencies"
	Transfers          Domain = "transfers"
	FeedInfo           Domain = "feed_info"
	MasterStopList     Domain = "master_stop_list"
	RouteMapping       Domain = "route_mapping"
)

// Kind splits domains by how the applier persists them.
type Kind int

const (
	// KindTable domains are truncated once per cycle and bulk-inserted.
	KindTable Kind = iota
	// KindEntity domains go through match -> create/update against the
	// content store.
	KindEntity
)

// Info carries the static metadata for one domain.
type Info struct {
	Key  Domain
	Kind Kind
	// File is the default extract file name under the epoch directory.
	File string
	// Table is the destination table for KindTable domains.
	Table string
	// Columns is the bulk-insert column order for KindTable domains;
	// values are pulled from the mapped record by the same names.
	Columns []string
}

// registry is the closed dispatch table, in populate order. Stations
// are read from the stops extract but form their own domain.
var registry = []Info{
	{Key: Routes, Kind: KindEntity, File: "routes.txt"},
	{Key: Stops, Kind: KindTable, File: "stops.txt", Table: "feed_stops",
		Columns: []string{"stop_id", "stop_code", "stop_name", "stop_desc", "stop_lat", "stop_lon", "zone_id", "stop_url", "location_type", "parent_station", "stop_timezone", "wheelchair_boarding"}},
	{Key: Stations, Kind: KindEntity, File: "stops.txt"},
	{Key: Trips, Kind: KindTable, File: "trips.txt", Table: "feed_trips",
		Columns: []string{"route_id", "service_id", "trip_id", "trip_headsign", "direction_id", "block_id", "shape_id", "wheelchair_accessible", "bikes_allowed"}},
	{Key: Directions, Kind: KindTable, File: "directions.txt", Table: "feed_directions",
		Columns: []string{"route_id", "direction_id", "direction", "direction_name"}},
	{Key: StopTimes, Kind: KindTable, File: "stop_times.txt", Table: "feed_stop_times",
		Columns: []string{"trip_id", "arrival_time", "departure_time", "stop_id", "stop_sequence", "stop_headsign", "pickup_type", "drop_off_type", "shape_dist_traveled", "timepoint"}},
	{Key: Calendar, Kind: KindTable, File: "calendar.txt", Table: "feed_calendar",
		Columns: []string{"service_id", "day_availability", "start_date", "end_date"}},
	{Key: CalendarDates, Kind: KindTable, File: "calendar_dates.txt", Table: "feed_calendar_dates",
		Columns: []string{"service_id", "date", "exception_type"}},
	{Key: CalendarAttributes, Kind: KindTable, File: "calendar_attributes.txt", Table: "feed_calendar_attributes",
		Columns: []string{"service_id", "service_description"}},
	{Key: FareAttributes, Kind: KindTable, File: "fare_attributes.txt", Table: "feed_fare_attributes",
		Columns: []string{"fare_id", "price", "currency_type", "payment_method", "transfers", "transfer_duration"}},
	{Key: FareRules, Kind: KindTable, File: "fare_rules.txt", Table: "feed_fare_rules",
		Columns: []string{"fare_id", "route_id", "origin_id", "destination_id", "contains_id"}},
	{Key: Shapes, Kind: KindTable, File: "shapes.txt", Table: "feed_shapes",
		Columns: []string{"shape_id", "shape_pt_lat", "shape_pt_lon", "shape_pt_sequence", "shape_dist_traveled"}},
	{Key: Frequencies, Kind: KindTable, File: "frequencies.txt", Table: "feed_frequencies",
		Columns: []string{"trip_id", "start_time", "end_time", "headway_secs", "exact_times"}},
	{Key: Transfers, Kind: KindTable, File: "transfers.txt", Table: "feed_transfers",
		Columns: []string{"from_stop_id", "to_stop_id", "transfer_type", "min_transfer_time"}},
	{Key: FeedInfo, Kind: KindTable, File: "feed_info.txt", Table: "feed_info",
		Columns: []string{"feed_publisher_name", "feed_publisher_url", "feed_lang", "default_lang", "feed_start_date", "feed_end_date", "feed_version", "feed_contact_email", "feed_contact_url"}},
	{Key: MasterStopList, Kind: KindTable, File: "master_stop_list.csv", Table: "feed_master_stop_list",
		Columns: []string{"route_id", "stop_id", "stop_direction", "stop_sequence", "stop_type", "timepoint_availability"}},
	{Key: RouteMapping, Kind: KindTable, File: "route_mapping.csv", Table: "feed_route_mapping",
		Columns: []string{"old_route_id", "new_route_id"}},
}

// All returns every domain in populate order.
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the metadata for a domain key.
func Lookup(key Domain) (Info, bool) {
	for _, info := range registry {
		if info.Key == key {
			return info, true
		}
	}
	return Info{}, false
}
