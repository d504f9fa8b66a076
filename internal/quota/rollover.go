package quota

import "time"

// Window is the counter window kind for rollover checks.
type Window int

const (
	// Day rolls over when the UTC calendar day changes.
	Day Window = iota
	// Hour rolls over when the UTC wall-clock hour changes.
	Hour
)

// RolledOver reports whether now has crossed into a new calendar day or
// hour since lastReset. Pure function, separate from the counter mutation,
// so window logic is testable without touching storage or the wall clock.
//
// Counters are reset lazily the first time an operation observes a
// rollover; there is no background scheduler.
func RolledOver(now, lastReset time.Time, w Window) bool {
	now = now.UTC()
	lastReset = lastReset.UTC()

	switch w {
	case Day:
		return now.Year() != lastReset.Year() || now.YearDay() != lastReset.YearDay()
	case Hour:
		return !now.Truncate(time.Hour).Equal(lastReset.Truncate(time.Hour))
	default:
		return false
	}
}
