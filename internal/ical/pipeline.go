package ical

import (
	"time"

	"calext/internal/model"
)

// ParseAndExpand converts raw ICS text into the flat list of event
// records for the window: non-recurring events first, in parse order,
// followed by the expanded occurrences of recurring events in expansion
// order. Non-recurring events outside the window are dropped silently.
func ParseAndExpand(data string, w model.Window, maxIterations int) ([]model.EventRecord, error) {
	comps, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Components carrying a RECURRENCE-ID redefine single instances of
	// the recurring event with the same UID; they replace the generated
	// instance and are never emitted standalone.
	overrides := make(map[string][]*RawComponent)
	for _, c := range comps {
		if c.RecurrenceID != nil {
			overrides[c.UID] = append(overrides[c.UID], c)
		}
	}

	singles := make([]model.EventRecord, 0, len(comps))
	var occurrences []model.EventRecord

	for _, c := range comps {
		if c.RecurrenceID != nil {
			continue
		}
		if !c.IsRecurring() {
			if c.Start.IsZero() || c.End.IsZero() {
				continue
			}
			if !w.Overlaps(c.Start, c.End) {
				continue
			}
			dur := DurationSeconds(c.Start, c.End, c.FullDay())
			singles = append(singles, buildRecord(c, c, c.Start, c.End, dur, false))
			continue
		}
		occurrences = append(occurrences, expandToRecords(c, overrides[c.UID], w, maxIterations)...)
	}

	return append(singles, occurrences...), nil
}

func expandToRecords(parent *RawComponent, overrides []*RawComponent, w model.Window, maxIterations int) []model.EventRecord {
	var out []model.EventRecord

	for _, start := range expandRecurring(parent, w, maxIterations) {
		src := parent
		occStart := start

		if o := findOverride(overrides, start); o != nil {
			src = o
			occStart = o.Start
		} else if parent.FullDay() {
			// Snap generated all-day instances to midnight of their date.
			occStart = time.Date(start.Year(), start.Month(), start.Day(),
				0, 0, 0, 0, start.Location())
		}

		// The occurrence's end is always derived from its own duration
		// rather than any end the recurrence library supplies, so the
		// start/end/duration invariant holds even when instance starts
		// shift (DST and similar).
		dur := DurationSeconds(src.Start, src.End, src.FullDay())
		occEnd := occStart.Add(time.Duration(dur) * time.Second)

		out = append(out, buildRecord(src, parent, occStart, occEnd, dur, true))
	}

	return out
}

// buildRecord assembles one EventRecord. src is the component the
// instance's own fields come from (the override when one applies);
// parent supplies inherited fields for recurring occurrences via the
// occurrence-then-parent fallback.
func buildRecord(src, parent *RawComponent, start, end time.Time, dur int64, recurring bool) model.EventRecord {
	attendees := ExtractAttendees(parent)
	if src != parent && len(src.lookup("ATTENDEE")) > 0 {
		attendees = ExtractAttendees(src)
	}

	return model.EventRecord{
		Start:       start,
		End:         end,
		Summary:     propFirst(src, parent, "SUMMARY"),
		Location:    propFirst(src, parent, "LOCATION"),
		Description: propFirst(src, parent, "DESCRIPTION"),
		UID:         propFirst(src, parent, "UID"),
		IsFullDay:   src.FullDay(),
		IsRecurring: recurring,
		Duration:    dur,
		Status:      propFirst(src, parent, "STATUS"),
		BusyStatus:  propFirst(src, parent, "X-MICROSOFT-CDO-BUSYSTATUS"),
		Categories:  ExtractCategories(src, parent),
		Attendees:   attendees,
	}
}

func propFirst(primary, fallback *RawComponent, name string) string {
	if v := primary.Prop(name); v != "" {
		return v
	}
	if fallback != nil && fallback != primary {
		return fallback.Prop(name)
	}
	return ""
}
