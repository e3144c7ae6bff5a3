package models

import "testing"

func TestDayAvailabilityRoundTrip(t *testing.T) {
	in := DayAvailability{
		Monday:    "1",
		Tuesday:   "1",
		Wednesday: "1",
		Thursday:  "1",
		Friday:    "1",
		Saturday:  "0",
		Sunday:    "0",
	}

	out, err := DecodeDayAvailability(in.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != in {
		t.Errorf("round trip lost data: %+v != %+v", out, in)
	}
}

func TestTimepointAvailabilityRoundTrip(t *testing.T) {
	in := TimepointAvailability{
		DayTypeWeekday:  1,
		DayTypeSaturday: 0,
		DayTypeSunday:   1,
	}

	out := DecodeTimepointAvailability(in.Encode())
	if len(out) != 3 {
		t.Fatalf("expected 3 day types, got %d", len(out))
	}
	for day, flag := range in {
		if out[day] != flag {
			t.Errorf("day %s: expected %d, got %d", day, flag, out[day])
		}
	}
}

func TestDecodeTimepointAvailabilityDegrades(t *testing.T) {
	for _, blob := range []string{"", "not json", "[1,2,3]"} {
		out := DecodeTimepointAvailability(blob)
		if out == nil {
			t.Errorf("blob %q: expected empty map, got nil", blob)
		}
		if len(out) != 0 {
			t.Errorf("blob %q: expected empty map, got %v", blob, out)
		}
	}
}
