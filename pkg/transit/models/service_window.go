package models

import "time"

// ServiceWindow is a calendar row reduced to the span the renderer
// cares about. IntervalDays is the whole-day length of the span and
// drives the "short overlay service" handling at render time.
type ServiceWindow struct {
	ServiceID    string    `json:"service_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	IntervalDays int       `json:"interval_days"`
}

// WindowDateLayout is the date form used by calendar and feed_info
// extracts.
const WindowDateLayout = "20060102"

// NewServiceWindow derives the interval from the span endpoints.
func NewServiceWindow(serviceID string, start, end time.Time) ServiceWindow {
	return ServiceWindow{
		ServiceID:    serviceID,
		Start:        start,
		End:          end,
		IntervalDays: int(end.Sub(start) / (24 * time.Hour)),
	}
}

// Contains reports whether t falls inside the window, endpoints
// included.
func (w ServiceWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
