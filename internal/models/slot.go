package models

import "time"

// Slot is one bookable interval on a resource's daily grid. Start/End are
// absolute instants; Label is the duration class shown on the grid.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Overlaps applies the half-open interval test: [s.Start, s.End) and
// [start, end) overlap iff s.Start < end && start < s.End.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// DaySheet is the rendered grid for one resource and civil day together with
// whatever currently occupies it. It is what the cache layer stores.
type DaySheet struct {
	ResourceID int64         `json:"resource_id"`
	Date       string        `json:"date"`
	Slots      []Slot        `json:"slots"`
	Occupied   []Reservation `json:"occupied,omitempty"`
	Blackouts  []Blackout    `json:"blackouts,omitempty"`
	RenderedAt time.Time     `json:"rendered_at"`
}
