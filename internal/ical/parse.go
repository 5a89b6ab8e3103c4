package ical

import (
	"errors"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// ParseError is the stable error surfaced when ICS text cannot be
// tokenized or tokenizes to zero VEVENT components. The underlying
// cause stays attached for diagnostics via Unwrap.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return "Failed to parse iCal data" }

func (e *ParseError) Unwrap() error { return e.Cause }

// RawComponent is one parsed VEVENT with its full property map plus the
// decoded fields the pipeline operates on. Props keys are the property
// names exactly as they appeared on the wire; lookups go through the
// case/prefix-insensitive resolver in props.go.
type RawComponent struct {
	UID   string
	Props map[string][]PropertyValue

	Start         time.Time
	End           time.Time
	StartDateOnly bool
	EndDateOnly   bool

	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time

	// Categories is nil when no CATEGORIES property is present, so the
	// occurrence-then-parent fallback can distinguish absent from empty.
	Categories []string
}

// IsRecurring reports whether the component carries a recurrence rule.
func (c *RawComponent) IsRecurring() bool { return c.RRule != "" }

// FullDay reports whether either endpoint is date-only.
func (c *RawComponent) FullDay() bool { return c.StartDateOnly || c.EndDateOnly }

// Parse tokenizes raw ICS text and returns its VEVENT components in
// parse order. Tokenization failure and an event-free calendar both
// surface as *ParseError; no partial results are returned.
func Parse(data string) ([]*RawComponent, error) {
	cal, err := ics.ParseCalendar(strings.NewReader(data))
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	events := cal.Events()
	if len(events) == 0 {
		return nil, &ParseError{Cause: errors.New("no VEVENT components found")}
	}

	out := make([]*RawComponent, 0, len(events))
	for _, ve := range events {
		out = append(out, newRawComponent(ve))
	}
	return out, nil
}

func newRawComponent(ve *ics.VEvent) *RawComponent {
	c := &RawComponent{Props: make(map[string][]PropertyValue)}

	for _, p := range ve.Properties {
		pv := PropertyValue{Value: p.Value}
		if len(p.ICalParameters) > 0 {
			pv.Params = make(map[string]string, len(p.ICalParameters))
			for k, vals := range p.ICalParameters {
				if len(vals) > 0 {
					pv.Params[k] = vals[0]
				}
			}
		}
		c.Props[p.IANAToken] = append(c.Props[p.IANAToken], pv)
	}

	c.UID = c.Prop("UID")

	if vs := c.lookup("DTSTART"); len(vs) > 0 {
		if t, dateOnly, err := parseDateTime(vs[0]); err == nil {
			c.Start = t
			c.StartDateOnly = dateOnly
		}
	}
	if vs := c.lookup("DTEND"); len(vs) > 0 {
		if t, dateOnly, err := parseDateTime(vs[0]); err == nil {
			c.End = t
			c.EndDateOnly = dateOnly
		}
	} else if !c.Start.IsZero() {
		// Missing DTEND: all-day events span one whole day, timed
		// events are treated as zero-length.
		if c.StartDateOnly {
			c.End = c.Start.Add(24 * time.Hour)
			c.EndDateOnly = true
		} else {
			c.End = c.Start
		}
	}

	c.RRule = c.Prop("RRULE")

	// EXDATE may repeat and each instance may hold a comma list.
	for _, v := range c.lookup("EXDATE") {
		for _, part := range strings.Split(v.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			ex := PropertyValue{Params: v.Params, Value: part}
			if t, _, err := parseDateTime(ex); err == nil {
				c.ExDates = append(c.ExDates, t)
			}
		}
	}

	if vs := c.lookup("RECURRENCE-ID"); len(vs) > 0 {
		if t, _, err := parseDateTime(vs[0]); err == nil {
			c.RecurrenceID = &t
		}
	}

	for _, v := range c.lookup("CATEGORIES") {
		for _, part := range strings.Split(v.Value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				c.Categories = append(c.Categories, part)
			}
		}
	}

	return c
}

// parseDateTime decodes an iCalendar DATE or DATE-TIME value using the
// property's own parameters. Date-only values decode at UTC midnight;
// TZID locations fall back to UTC when unknown.
func parseDateTime(v PropertyValue) (t time.Time, dateOnly bool, err error) {
	val := strings.TrimSpace(v.Value)
	if val == "" {
		return time.Time{}, false, errors.New("empty date value")
	}

	if strings.EqualFold(v.Param("VALUE"), "DATE") || !strings.Contains(val, "T") {
		t, err = time.ParseInLocation("20060102", val, time.UTC)
		return t, true, err
	}

	if strings.HasSuffix(val, "Z") {
		t, err = time.Parse("20060102T150405Z", val)
		return t, false, err
	}

	loc := time.UTC
	if tzid := v.Param("TZID"); tzid != "" {
		if l, lerr := time.LoadLocation(tzid); lerr == nil {
			loc = l
		}
	}
	t, err = time.ParseInLocation("20060102T150405", val, loc)
	return t, false, err
}
