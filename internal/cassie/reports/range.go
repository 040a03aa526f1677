// Package reports resolves natural-language and preset time windows for the
// ticket reports, and runs the scheduled summary digest. All windows are
// emitted as UTC strings in the store's timestamp layout so they can be
// compared directly against ticket rows.
package reports

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// DefaultTimezone is the reporting timezone when none is configured.
const DefaultTimezone = "Asia/Kolkata"

// Range is a closed UTC window in store.TimeLayout form.
type Range struct {
	FromUTC string `json:"from_utc"`
	ToUTC   string `json:"to_utc"`
}

var (
	explicitRangeRe = regexp.MustCompile(`(?i)from\s+(\d{4})-(\d{2})-(\d{2})\s+to\s+(\d{4})-(\d{2})-(\d{2})`)
	monthlyRe       = regexp.MustCompile(`(?i)monthly\s+ticket\s+summary\s+for\s+([a-z]+)\s+(\d{4})`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// RangeFromQuery resolves a free-text range request in the given location.
//
// Recognised, in priority order: an explicit "from YYYY-MM-DD to YYYY-MM-DD"
// pair (day start to day end), "monthly ticket summary for <month> <year>"
// (the calendar month), then the keywords today, this week (Monday start),
// last week, this month, last 30, last 7. Anything else yields the
// week-so-far window.
func RangeFromQuery(q string, loc *time.Location, now time.Time) Range {
	t := strings.ToLower(q)
	local := now.In(loc)

	if m := explicitRangeRe.FindStringSubmatch(t); m != nil {
		from := time.Date(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), 0, 0, 0, 0, loc)
		to := time.Date(atoi(m[4]), time.Month(atoi(m[5])), atoi(m[6]), 23, 59, 59, 0, loc)
		return between(from, to)
	}

	if m := monthlyRe.FindStringSubmatch(t); m != nil {
		if month, ok := monthsByName[m[1]]; ok {
			year := atoi(m[2])
			start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
			end := start.AddDate(0, 1, 0).Add(-time.Second)
			return between(start, end)
		}
		// Unknown month names fall through to the keyword ladder.
	}

	switch {
	case strings.Contains(t, "today"):
		return between(dayStart(local), local)
	case strings.Contains(t, "this week"):
		return between(weekStart(local), local)
	case strings.Contains(t, "last week"):
		end := weekStart(local).Add(-time.Second)
		return between(weekStart(end), end)
	case strings.Contains(t, "this month"):
		return between(monthStart(local), local)
	case strings.Contains(t, "last 30"):
		return between(dayStart(local.AddDate(0, 0, -30)), local)
	case strings.Contains(t, "last 7"):
		return between(dayStart(local.AddDate(0, 0, -7)), local)
	}

	return between(weekStart(local), local)
}

// PresetRange resolves a named preset against UTC now. Recognised names:
// today, this_week, this_month, last30; anything else means the last 7 days.
func PresetRange(name string, now time.Time) Range {
	u := now.UTC()
	var start time.Time
	switch name {
	case "today":
		start = dayStart(u)
	case "this_week":
		start = weekStart(u)
	case "this_month":
		start = monthStart(u)
	case "last30":
		start = dayStart(u.AddDate(0, 0, -30))
	default:
		start = dayStart(u.AddDate(0, 0, -7))
	}
	return between(start, u)
}

// ExplicitRange builds the window for a from/to date pair ("2006-01-02"),
// spanning the first day's start to the last day's end in loc.
func ExplicitRange(from, to string, loc *time.Location) (Range, error) {
	f, err := time.ParseInLocation("2006-01-02", from, loc)
	if err != nil {
		return Range{}, fmt.Errorf("invalid from date %q", from)
	}
	t, err := time.ParseInLocation("2006-01-02", to, loc)
	if err != nil {
		return Range{}, fmt.Errorf("invalid to date %q", to)
	}
	return between(f, t.Add(24*time.Hour-time.Second)), nil
}

// Location resolves a timezone name, falling back to the default reporting
// timezone and finally UTC.
func Location(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

func between(from, to time.Time) Range {
	return Range{FromUTC: store.UTCString(from), ToUTC: store.UTCString(to)}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// weekStart returns Monday 00:00:00 of t's week.
func weekStart(t time.Time) time.Time {
	dow := (int(t.Weekday()) + 6) % 7
	return dayStart(t.AddDate(0, 0, -dow))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
