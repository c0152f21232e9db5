package trigger

import "time"

// Range is a concrete UTC time span resolved from a symbolic window, plus a
// human-readable label used in generation prompts.
type Range struct {
	Start time.Time
	End   time.Time
	Label string
}

// Resolve maps a symbolic window to concrete UTC instants relative to now.
// Unknown windows resolve as last_7_days. Pure: no I/O, no clock reads.
func Resolve(window LookbackWindow, now time.Time) Range {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch window {
	case WindowCurrentDay:
		return Range{Start: midnight, End: now, Label: "today so far"}
	case WindowYesterday:
		return Range{Start: midnight.Add(-24 * time.Hour), End: midnight, Label: "yesterday"}
	case WindowLast14Days:
		return Range{Start: now.Add(-14 * 24 * time.Hour), End: now, Label: "last 14 days (rolling)"}
	case WindowLast30Days:
		return Range{Start: now.Add(-30 * 24 * time.Hour), End: now, Label: "last 30 days (rolling)"}
	default:
		return Range{Start: now.Add(-7 * 24 * time.Hour), End: now, Label: "last 7 days (rolling)"}
	}
}
