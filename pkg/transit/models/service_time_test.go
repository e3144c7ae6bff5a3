package models

import "testing"

func TestParseServiceTime(t *testing.T) {
	st, err := ParseServiceTime("08:15:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Seconds() != 8*3600+15*60+30 {
		t.Errorf("expected %d seconds, got %d", 8*3600+15*60+30, st.Seconds())
	}
	if st.String() != "08:15:30" {
		t.Errorf("expected raw value preserved, got %q", st.String())
	}
}

func TestParseServiceTimeEmptyIsZero(t *testing.T) {
	st, err := ParseServiceTime("")
	if err != nil {
		t.Fatalf("empty time should not error, got %v", err)
	}
	if !st.IsZero() {
		t.Error("empty time should be zero")
	}
}

func TestParseServiceTimeRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"8:15", "aa:bb:cc", "08:75:00", "08:00:99"} {
		if _, err := ParseServiceTime(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestServiceTimePastMidnight(t *testing.T) {
	st, err := ParseServiceTime("25:10:00")
	if err != nil {
		t.Fatalf("hours past 24 must parse, got %v", err)
	}
	if st.Seconds() != 25*3600+10*60 {
		t.Errorf("expected raw seconds kept for ordering, got %d", st.Seconds())
	}
	if st.Display() != "01:10:00" {
		t.Errorf("expected display folded to 01:10:00, got %q", st.Display())
	}

	// ordering uses the unfolded value: 25:10 is after 23:00
	late, _ := ParseServiceTime("23:00:00")
	if st.Before(late) {
		t.Error("25:10:00 should sort after 23:00:00")
	}
}

func TestServiceTimeBeforeZeroSortsLast(t *testing.T) {
	recorded, _ := ParseServiceTime("06:00:00")
	var zero ServiceTime

	if zero.Before(recorded) {
		t.Error("zero time should not sort before a recorded time")
	}
	if !recorded.Before(zero) {
		t.Error("recorded time should sort before a zero time")
	}
}
