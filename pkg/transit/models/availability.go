package models

import "encoding/json"

// DayAvailability is the calendar file's seven day columns collapsed
// into one value. It travels as an opaque JSON blob through the import
// tables and is only reopened by the aggregation step.
type DayAvailability struct {
	Monday    string `json:"monday"`
	Tuesday   string `json:"tuesday"`
	Wednesday string `json:"wednesday"`
	Thursday  string `json:"thursday"`
	Friday    string `json:"friday"`
	Saturday  string `json:"saturday"`
	Sunday    string `json:"sunday"`
}

// Encode serializes the availability for storage.
func (d DayAvailability) Encode() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// DecodeDayAvailability reopens a stored availability blob.
func DecodeDayAvailability(s string) (DayAvailability, error) {
	var d DayAvailability
	err := json.Unmarshal([]byte(s), &d)
	return d, err
}

// Day-type keys used by the master stop list's timepoint columns:
// "1" weekday, "2" Saturday, "3" Sunday.
const (
	DayTypeWeekday  = "1"
	DayTypeSaturday = "2"
	DayTypeSunday   = "3"
)

// TimepointAvailability records, per day type, whether a sequence entry
// is advertised as a timepoint.
type TimepointAvailability map[string]int

// Encode serializes the availability for storage.
func (t TimepointAvailability) Encode() string {
	b, _ := json.Marshal(t)
	return string(b)
}

// DecodeTimepointAvailability reopens a stored availability blob. A
// missing or malformed blob decodes to an empty map so render paths can
// treat the stop as a plain stop.
func DecodeTimepointAvailability(s string) TimepointAvailability {
	t := TimepointAvailability{}
	if s == "" {
		return t
	}
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return TimepointAvailability{}
	}
	return t
}
