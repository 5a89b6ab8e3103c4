package model

import "time"

// Attendee is a single participant extracted from an ATTENDEE property.
// Email is always the obfuscated form; Name falls back to it when the
// property carries no CN parameter.
type Attendee struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Role   string `json:"role"`
}

// EventRecord is the canonical normalized event entity: either a plain
// VEVENT or one concrete occurrence of a recurring VEVENT. Records are
// immutable after construction and held in memory only for the current
// fetch cycle's result.
//
// String fields use the empty string to mean "absent"; JSON output
// omits them accordingly.
type EventRecord struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Summary     string `json:"summary,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	UID         string `json:"uid,omitempty"`

	IsFullDay   bool `json:"isFullDay"`
	IsRecurring bool `json:"isRecurring"`

	// Duration is the event length in seconds. For timed events it is
	// end-start rounded down to whole seconds; for all-day events it is
	// an exact multiple of 86400 and never zero.
	Duration int64 `json:"duration"`

	Status     string `json:"status,omitempty"`
	BusyStatus string `json:"ms_busystatus,omitempty"`

	Categories []string   `json:"categories"`
	Attendees  []Attendee `json:"attendees"`
}

// Window is the inclusive query range events are expanded and filtered
// against.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Overlaps reports whether [start, end] intersects the window. Both
// edges are inclusive: end >= From && start <= To.
func (w Window) Overlaps(start, end time.Time) bool {
	return !end.Before(w.From) && !start.After(w.To)
}
