package linky

import "time"

const (
	dayLayout     = "2006-01-02"
	readingLayout = "2006-01-02 15:04:05"
	displayLayout = "02/01/2006"
)

// isBefore reports whether a falls on or before b's calendar day, each
// date read in its own location. A nil bound never matches.
func isBefore(a time.Time, b *time.Time) bool {
	if b == nil {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad <= bd
}

// startOfDay returns t's calendar date, as read in t's own location, at midnight in loc
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func formatDay(t time.Time) string {
	return t.Format(dayLayout)
}

func daysAgo(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// ParseDay parses a YYYY-MM-DD date at midnight in loc
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dayLayout, s, loc)
}
