package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ServiceTime is a schedule time of day in HH:MM:SS form. Feeds encode
// trips that run past midnight with hours of 24 and above, so the hour
// is kept as-is for ordering and only folded back for display.
type ServiceTime struct {
	raw     string
	seconds int
	valid   bool
}

// ParseServiceTime parses HH:MM:SS, accepting hours >= 24. An empty
// string yields a zero (invalid) ServiceTime rather than an error, since
// sparse stop times are the norm.
func ParseServiceTime(s string) (ServiceTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ServiceTime{}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ServiceTime{}, fmt.Errorf("invalid time %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return ServiceTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return ServiceTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return ServiceTime{}, fmt.Errorf("invalid second in %q", s)
	}

	return ServiceTime{
		raw:     s,
		seconds: h*3600 + m*60 + sec,
		valid:   true,
	}, nil
}

// IsZero reports whether no time was recorded.
func (t ServiceTime) IsZero() bool {
	return !t.valid
}

// Seconds returns the offset from the service day start, which can
// exceed 86400 for past-midnight trips.
func (t ServiceTime) Seconds() int {
	return t.seconds
}

// String returns the raw feed value.
func (t ServiceTime) String() string {
	return t.raw
}

// Display returns the clock-face time with past-midnight hours folded
// back into 0-23.
func (t ServiceTime) Display() string {
	if !t.valid {
		return ""
	}
	h := t.seconds / 3600
	if h >= 24 {
		h -= 24
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, (t.seconds%3600)/60, t.seconds%60)
}

// Before orders two service times; a zero time sorts after any recorded
// time.
func (t ServiceTime) Before(other ServiceTime) bool {
	if !t.valid {
		return false
	}
	if !other.valid {
		return true
	}
	return t.seconds < other.seconds
}
