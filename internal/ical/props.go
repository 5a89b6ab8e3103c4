package ical

import (
	"strings"
	"time"

	"calext/internal/model"
)

// PropertyValue is one value of an iCalendar property. A property is
// either a plain scalar or carries parameters (SUMMARY;LANGUAGE=de:Text);
// Params is nil for the plain form. All textual reads must go through
// StringValue so the parameterized form never leaks to consumers.
type PropertyValue struct {
	Params map[string]string
	Value  string
}

// StringValue extracts the plain scalar from either property form. An
// empty value means the property is effectively absent.
func (p PropertyValue) StringValue() string {
	return p.Value
}

// Param returns the named parameter, matching case-insensitively
// (CN/cn, PARTSTAT/partstat and so on appear in the wild).
func (p PropertyValue) Param(name string) string {
	if len(p.Params) == 0 {
		return ""
	}
	if v, ok := p.Params[name]; ok {
		return v
	}
	for k, v := range p.Params {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// lookup resolves a property name against the stored keys. Parsed
// representations store names inconsistently, so resolution tries the
// exact lowercase key, then uppercase, then the uppercase name with a
// leading "X-" stripped, in that priority order. No property name is
// special-cased.
func (c *RawComponent) lookup(name string) []PropertyValue {
	upper := strings.ToUpper(name)
	for _, key := range []string{strings.ToLower(name), upper, strings.TrimPrefix(upper, "X-")} {
		if vs, ok := c.Props[key]; ok && len(vs) > 0 {
			return vs
		}
	}
	return nil
}

// Prop reads a textual property through the case/prefix-insensitive
// resolver and the StringValue chokepoint. Returns "" when absent.
func (c *RawComponent) Prop(name string) string {
	vs := c.lookup(name)
	if len(vs) == 0 {
		return ""
	}
	return vs[0].StringValue()
}

// ObfuscateEmail hides the middle of an address: the local part and the
// domain's top-level suffix (from the last dot onward) are kept, the
// rest becomes "***". Values without an "@" pass through unchanged.
func ObfuscateEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	domain := email[at+1:]
	suffix := ""
	if dot := strings.LastIndex(domain, "."); dot >= 0 {
		suffix = domain[dot:]
	}
	return email[:at] + "@***" + suffix
}

// ExtractAttendees normalizes the ATTENDEE properties of a component.
// One attendee and many attendees are handled uniformly; missing
// parameters get RFC 5545 defaults.
func ExtractAttendees(c *RawComponent) []model.Attendee {
	vs := c.lookup("ATTENDEE")
	out := make([]model.Attendee, 0, len(vs))
	for _, v := range vs {
		email := stripMailto(v.StringValue())
		display := ObfuscateEmail(email)

		name := v.Param("CN")
		if name == "" {
			name = display
		}
		status := v.Param("PARTSTAT")
		if status == "" {
			status = "NEEDS-ACTION"
		}
		role := v.Param("ROLE")
		if role == "" {
			role = "REQ-PARTICIPANT"
		}

		out = append(out, model.Attendee{
			Name:   name,
			Email:  display,
			Status: status,
			Role:   role,
		})
	}
	return out
}

func stripMailto(v string) string {
	const prefix = "mailto:"
	if len(v) >= len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return v[len(prefix):]
	}
	return v
}

// ExtractCategories returns the component's category list, falling back
// to the given parent component, then to an empty list. Recurring
// occurrences use this so they inherit the parent definition's
// categories unless they override them.
func ExtractCategories(primary, fallback *RawComponent) []string {
	if primary != nil && primary.Categories != nil {
		return primary.Categories
	}
	if fallback != nil && fallback.Categories != nil {
		return fallback.Categories
	}
	return []string{}
}

// DurationSeconds computes the event length in seconds. Zero endpoints
// yield 0. All-day spans are rounded to whole days with a minimum of
// one day, guarding against feed producers that encode all-day ranges
// with sub-day timestamp drift. Timed spans floor to whole seconds and
// never go negative.
func DurationSeconds(start, end time.Time, fullDay bool) int64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	ms := end.Sub(start).Milliseconds()
	if fullDay {
		days := (ms + 43200000) / 86400000 // round half up
		if ms < 0 {
			days = (ms - 43200000) / 86400000
		}
		if days < 1 {
			days = 1
		}
		return days * 86400
	}
	if ms < 0 {
		return 0
	}
	return ms / 1000
}
