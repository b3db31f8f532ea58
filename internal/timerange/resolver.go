// Package timerange resolves natural-language time expressions into concrete
// query windows.
//
// Operators phrase incidents colloquially ("last 30 minutes", "yesterday
// 10am to 11am", "Jan 25th 2026, 10-11 AM", "2 hours ago"). The resolver
// covers a fixed set of phrasing patterns and always produces a bounded
// window — unmatched input falls back to the last hour rather than failing.
package timerange

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devKanishk15/postgres-ai/pkg/models"
)

// Patterns are tried in order; they overlap, so first match wins.
var (
	lastPattern = regexp.MustCompile(`last\s+(\d+)\s+(minute|hour|day|week)s?`)
	agoPattern  = regexp.MustCompile(`(\d+)\s+(minute|hour|day)s?\s+ago`)
	dayPattern  = regexp.MustCompile(`(today|yesterday)\s+(\d{1,2})\s*(am|pm)?\s*(?:to|-)\s*(\d{1,2})\s*(am|pm)?`)
	datePattern = regexp.MustCompile(`([A-Za-z]+\s+\d{1,2}(?:st|nd|rd|th)?\s*,?\s*\d{4})\s*,?\s*(\d{1,2})(?::(\d{2}))?\s*-\s*(\d{1,2})(?::(\d{2}))?\s*(AM|PM|am|pm)?`)

	ordinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)`)
)

// Resolve parses expr into a [start, end] window relative to ref. It never
// fails: expressions no rule matches resolve to the last hour ending at ref.
func Resolve(expr string, ref time.Time) models.TimeWindow {
	lower := strings.ToLower(expr)

	// "last N minutes/hours/days/weeks" — window ending now.
	if m := lastPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		d := unitDuration(m[2], n)
		return models.TimeWindow{Start: ref.Add(-d).Unix(), End: ref.Unix()}
	}

	// "N minutes/hours/days ago" names a point in time, not a range;
	// materialize a 10-minute window centered on it.
	if m := agoPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		center := ref.Add(-unitDuration(m[2], n))
		return models.TimeWindow{
			Start: center.Add(-5 * time.Minute).Unix(),
			End:   center.Add(5 * time.Minute).Unix(),
		}
	}

	// "today/yesterday H[am/pm] to H[am/pm]" — two hour-of-day boundaries
	// on a calendar day. A bare hour with no am/pm marker is taken as
	// already 24-hour; "yesterday 10 to 11" therefore means 10:00-11:00
	// even if the speaker meant evening. The source phrasing does not
	// disambiguate, so neither do we.
	if m := dayPattern.FindStringSubmatch(lower); m != nil {
		base := ref
		if m[1] == "yesterday" {
			base = ref.AddDate(0, 0, -1)
		}
		startHour := to24Hour(atoi(m[2]), m[3])
		endHour := to24Hour(atoi(m[4]), m[5])
		start := atHour(base, startHour, 0)
		end := atHour(base, endHour, 0)
		if !start.After(end) {
			return models.TimeWindow{Start: start.Unix(), End: end.Unix()}
		}
	}

	// "<Month> <Day> <Year>, H[:MM]-H[:MM] [AM/PM]" — an explicit calendar
	// date with an hour range. AM/PM, when present, applies to both bounds.
	if m := datePattern.FindStringSubmatch(expr); m != nil {
		base, ok := parseCalendarDate(m[1], ref.Location())
		if !ok {
			base = ref
		}
		startHour, startMin := atoi(m[2]), atoi(m[3])
		endHour, endMin := atoi(m[4]), atoi(m[5])
		if strings.EqualFold(m[6], "pm") {
			if startHour < 12 {
				startHour += 12
			}
			if endHour < 12 {
				endHour += 12
			}
		}
		start := atHour(base, startHour, startMin)
		end := atHour(base, endHour, endMin)
		if !start.After(end) {
			return models.TimeWindow{Start: start.Unix(), End: end.Unix()}
		}
	}

	// Free-form date as a last resort: a recognized instant becomes a
	// 1-hour window centered on it.
	if t, ok := parseLoose(expr, ref); ok {
		return models.TimeWindow{
			Start: t.Add(-30 * time.Minute).Unix(),
			End:   t.Add(30 * time.Minute).Unix(),
		}
	}

	// Default: last 1 hour.
	return models.TimeWindow{Start: ref.Add(-time.Hour).Unix(), End: ref.Unix()}
}

// Describe renders a resolved window into the API shape.
func Describe(expr string, ref time.Time) models.TimeRange {
	w := Resolve(expr, ref)
	return models.TimeRange{
		Expression: expr,
		StartTS:    w.Start,
		EndTS:      w.End,
		StartISO:   time.Unix(w.Start, 0).Format(time.RFC3339),
		EndISO:     time.Unix(w.End, 0).Format(time.RFC3339),
	}
}

func unitDuration(unit string, n int) time.Duration {
	switch unit {
	case "minute":
		return time.Duration(n) * time.Minute
	case "hour":
		return time.Duration(n) * time.Hour
	case "day":
		return time.Duration(n) * 24 * time.Hour
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// to24Hour converts an hour with an optional am/pm marker. Conversion only
// happens when the marker demands it; a bare hour passes through untouched.
func to24Hour(hour int, marker string) int {
	if marker == "pm" && hour < 12 {
		return hour + 12
	}
	if marker == "am" && hour == 12 {
		return 0
	}
	return hour
}

// atHour pins a wall-clock time onto base's calendar day.
func atHour(base time.Time, hour, min int) time.Time {
	if hour > 23 {
		hour = 23
	}
	if min > 59 {
		min = 59
	}
	return time.Date(base.Year(), base.Month(), base.Day(), hour, min, 0, 0, base.Location())
}

// calendarLayouts accepted by parseCalendarDate, after ordinal suffixes are
// stripped and comma spacing normalized.
var calendarLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
}

// parseCalendarDate parses a "<Month> <Day>[, ]<Year>" phrase.
func parseCalendarDate(s string, loc *time.Location) (time.Time, bool) {
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, ",", ", ")), " ")
	for _, layout := range calendarLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// looseLayouts accepted by parseLoose, most specific first.
var looseLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"January 2, 2006 15:04",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan 2 15:04",
	"15:04",
	"3pm",
	"3 pm",
}

// parseLoose makes a best-effort pass over the whole expression with a set
// of common date/time layouts. Clock-only layouts ("15:04", "3pm") parse to
// year 0; those are re-anchored onto ref's calendar day so every accepted
// input stays near the reference instant.
func parseLoose(s string, ref time.Time) (time.Time, bool) {
	s = ordinalSuffix.ReplaceAllString(strings.TrimSpace(s), "$1")
	for _, layout := range looseLayouts {
		t, err := time.ParseInLocation(layout, s, ref.Location())
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = time.Date(ref.Year(), ref.Month(), ref.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, ref.Location())
		}
		return t, true
	}
	return time.Time{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
