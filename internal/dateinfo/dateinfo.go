// Package dateinfo computes the calendar facts a presentation layer
// needs about a time slot: same-day/week/month predicates and week
// numbering. Everything is pure; the reference instant is always passed
// in so comparisons stay deterministic.
package dateinfo

import "time"

// Week numbering schemes, selected by the weekStart argument.
const (
	WeekStartSunday = 0 // Sunday-first (region style) numbering
	WeekStartMonday = 1 // ISO 8601 numbering
)

// Info bundles the date facts for one slot.
type Info struct {
	IsSameYear  bool `json:"isSameYear"`
	IsSameMonth bool `json:"isSameMonth"`
	IsSameWeek  bool `json:"isSameWeek"`
	IsToday     bool `json:"isToday"`
	NowInRange  bool `json:"nowInRange"`
	IsPassed    bool `json:"isPassed"`

	Weekday   int `json:"weekday"` // Mon=1 .. Sun=7
	Year      int `json:"year"`
	Month     int `json:"month"` // 1-indexed
	Day       int `json:"day"`
	Week      int `json:"week"`
	DayOfYear int `json:"dayOfYear"`
}

// For computes the date info of a slot relative to now. slotEnd may be
// the zero time when the slot has no range (NowInRange is then false);
// a zero now falls back to the current time. IsSameMonth compares the
// month number only and IsSameWeek the week number only, mirroring how
// the display layer has always used them.
func For(slotStart, slotEnd, now time.Time, weekStart int) Info {
	if now.IsZero() {
		now = time.Now()
	}

	slotInt := dateInt(slotStart)
	nowInt := dateInt(now)

	return Info{
		IsSameYear:  now.Year() == slotStart.Year(),
		IsSameMonth: now.Month() == slotStart.Month(),
		IsSameWeek:  weekNumber(now, weekStart) == weekNumber(slotStart, weekStart),
		IsToday:     nowInt == slotInt,
		NowInRange:  !slotEnd.IsZero() && !slotStart.After(now) && !now.After(slotEnd),
		IsPassed:    nowInt > slotInt,
		Weekday:     isoWeekday(slotStart),
		Year:        slotStart.Year(),
		Month:       int(slotStart.Month()),
		Day:         slotStart.Day(),
		Week:        weekNumber(slotStart, weekStart),
		DayOfYear:   slotStart.YearDay(),
	}
}

// dateInt encodes the calendar date as YYYYMMDD for fast date-only
// comparison.
func dateInt(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// isoWeekday maps time.Weekday onto Mon=1 .. Sun=7.
func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// weekNumber returns the week of year under the selected scheme:
// ISO 8601 for Monday-first weeks, or the Sunday-first numbering where
// week 1 is the (possibly partial) week containing January 1st.
func weekNumber(t time.Time, weekStart int) int {
	if weekStart != WeekStartSunday {
		_, wk := t.ISOWeek()
		return wk
	}
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	offset := int(jan1.Weekday()) // Sunday = 0
	return (t.YearDay()+offset-1)/7 + 1
}
