package ical

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "calext/internal/log"
	"calext/internal/model"
)

// DefaultMaxIterations bounds how many occurrences a single recurrence
// rule may produce. It protects against runaway rules; instances beyond
// the cap are dropped silently, not reported as an error.
const DefaultMaxIterations = 1000

// expandRecurring produces the ordered, exclusion-filtered occurrence
// start times of a recurring component whose own starts fall inside the
// window, capped at maxIterations instances.
func expandRecurring(c *RawComponent, w model.Window, maxIterations int) []time.Time {
	if c.Start.IsZero() {
		return nil
	}
	r, err := rrule.StrToRRule(c.RRule)
	if err != nil {
		appLog.Error("failed to parse RRULE", err, "uid", c.UID, "rrule", c.RRule)
		return nil
	}
	r.DTStart(c.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range c.ExDates {
		// Align EXDATE with the event's own location so exact-instant
		// matching removes the intended instance.
		set.ExDate(ex.In(c.Start.Location()))
	}

	from := w.From.In(c.Start.Location())
	to := w.To.In(c.Start.Location())
	starts := set.Between(from, to, true)

	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if len(starts) > maxIterations {
		appLog.Warn("recurrence expansion truncated",
			"uid", c.UID, "cap", maxIterations, "produced", len(starts))
		starts = starts[:maxIterations]
	}
	return starts
}

// findOverride returns the override component whose RECURRENCE-ID names
// the given generated instance start, if any.
func findOverride(overrides []*RawComponent, start time.Time) *RawComponent {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return o
		}
	}
	return nil
}
